package claims

const DefaultFeePercent = 10

// Fee splits a gross claim into the protocol fee, rounded half up, and what
// reaches the wallet.
func Fee(gross uint64, percent uint64) (fee, net uint64) {
	fee = (gross*percent + 50) / 100
	if fee > gross {
		fee = gross
	}
	return fee, gross - fee
}
