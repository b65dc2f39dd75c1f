// Command syncabull mirrors remote media libraries to local disk. It hosts
// the long-running daemon plus operator commands for accounts, items,
// status, and one-shot syncs.
package main
