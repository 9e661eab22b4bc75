// Package core holds the types shared by the reconciler, the transfer engine
// and the remote backends: the closed error taxonomy, the Input capability
// that maps a simulation date to a local directory, and the remote client
// contracts.
package core
