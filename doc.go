// Package condrv implements a user-mode reimplementation of the console
// device protocol: packet dispatch, the input pipeline (byte codec, input
// parser, line editor), a screen-buffer model driven by a VT/ANSI
// interpreter, and a server-wide command-alias store.
//
// ServerState is the single mutable root; every operation is a function of
// (ServerState, handle ids, request) rather than a method on a handle
// object, keeping the arena-owned Connection/InputHandle/OutputHandle maps
// free of cyclic pointers. Dispatch is the entry point a transport's
// read loop calls for every incoming request; HostIO and Transport are the
// two collaborators a surrounding process supplies.
package condrv
