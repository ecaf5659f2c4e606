package store

// Declare database key prefix for objects.
// Identities inside keys are base58 so keys stay readable in redis.
const (
	PrefixAssetMint    = "asset:mint:"
	PrefixAssetAccount = "asset:acct:"

	PrefixVaultState     = "vault:state:"
	PrefixVaultLifecycle = "vault:lifecycle:"

	// Ledger keys are namespaced by ledger identity: "ledger:<id>:" + suffix
	PrefixLedger          = "ledger:"
	LedgerKeyOwner        = "owner"
	LedgerKeyAdmin        = "admin"
	LedgerKeyTotalSupply  = "supply"
	LedgerKeyLifecycle    = "lifecycle"
	LedgerPrefixBalance   = "bal:"
	LedgerPrefixAllowance = "allow:"
	LedgerPrefixNonce     = "nonce:"

	// Next unused request nonce of each signing caller on the RPC interface
	PrefixEnvelopeNonce = "rpc:nonce:"
)
