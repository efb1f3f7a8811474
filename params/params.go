package params

type CodeVersion uint16

const (
	// NodeVersionV1 starts from v1.0.0
	NodeVersionV1 = CodeVersion(1)
)

var CurrentCodeVersion = NodeVersionV1
var MinimizeVersionRequired = NodeVersionV1

////////////////////////////////////////////////////////////////

const (
	// TransactionVersion is the current canonical transaction layout version
	TransactionVersion = uint32(1)

	// DefaultContentMaxSize is 3.5MB
	DefaultContentMaxSize = 3670016

	// DefaultMiningTimeoutSeconds bounds the wait for a mining acknowledgement
	DefaultMiningTimeoutSeconds = 60
)

const (
	// CronNodeSharedSecrets renews the shared secrets daily at midnight
	CronNodeSharedSecrets = "0 0 0 * * *"
	// CronOracle samples the oracle feeds every ten minutes
	CronOracle = "0 */10 * * * *"
	// CronMintRewards mints the monthly reward pool
	CronMintRewards = "0 0 2 1 * *"
	// CronNodeRewards distributes the monthly node rewards
	CronNodeRewards = "0 0 2 1 * *"
)
