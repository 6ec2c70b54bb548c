// Package types
package types

// Operation tags. The tag on a proposal selects the executor adapter and the
// group rule that governs it.
const (
	OpCreateERC20Token    = "createERC20Token"
	OpCreateMoveToken     = "createMoveToken"
	OpCreateNFTCollection = "createNFTCollection"
	OpMintNFT             = "mintNFT"
	OpTransferETH         = "transferETH"
	OpBatchPlayerRewards  = "batchPlayerRewards"
	OpEmergencyStop       = "emergencyStop"
)

// KnownOperations lists every operation tag the toolkit ships adapters for.
var KnownOperations = []string{
	OpCreateERC20Token,
	OpCreateMoveToken,
	OpCreateNFTCollection,
	OpMintNFT,
	OpTransferETH,
	OpBatchPlayerRewards,
	OpEmergencyStop,
}

func IsKnownOperation(op string) bool {
	for _, tag := range KnownOperations {
		if tag == op {
			return true
		}
	}
	return false
}
