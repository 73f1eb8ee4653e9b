package common

const (
	// FEDERATOR name to identify the federator event loop component
	FEDERATOR = "federator"
	// LISTENER_LOCKING name to identify the locking chain listener
	LISTENER_LOCKING = "listener-locking" //nolint:stylecheck
	// LISTENER_ISSUING name to identify the issuing chain listener
	LISTENER_ISSUING = "listener-issuing" //nolint:stylecheck
	// RPC name to identify the rpc server component
	RPC = "rpc"
	// STORE name to identify the attestation store component
	STORE = "store"
)
