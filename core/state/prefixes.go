package state

var (
	lendingConfigKeyBytes   = []byte("lending/config")
	lendingCollateralPrefix = []byte("lending/collateral/")
	lendingLoanPrefix       = []byte("lending/loan/")
)

// LendingConfigKey returns the key of the module configuration singleton.
func LendingConfigKey() []byte {
	return append([]byte(nil), lendingConfigKeyBytes...)
}

// LendingCollateralKey returns the collateral key of account.
func LendingCollateralKey(account string) []byte {
	return append(append([]byte(nil), lendingCollateralPrefix...), account...)
}

// LendingLoanKey returns the loan key of account.
func LendingLoanKey(account string) []byte {
	return append(append([]byte(nil), lendingLoanPrefix...), account...)
}
