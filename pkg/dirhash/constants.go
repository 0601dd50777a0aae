package dirhash

// Constants defining default values for the configuration options.
// Used by NewEngine for zero values and by the CLI when setting viper defaults.
const (
	// DefaultConcurrency determines the default number of workers. 0 means runtime.NumCPU().
	DefaultConcurrency = 0
	// DefaultAlgorithm is the digest used when none is configured.
	DefaultAlgorithm = AlgorithmBLAKE3
	// DefaultSymlinkPolicy never follows symbolic links.
	DefaultSymlinkPolicy = SymlinkSkip
	// DefaultMaxFileSize disables the size ceiling.
	DefaultMaxFileSize int64 = 0
)

// readBufferSize is the chunk size used when streaming a file through the digest.
const readBufferSize = 1 << 20 // 1 MiB

// SupportedAlgorithms lists every Algorithm accepted by NewDigestHasher.
var SupportedAlgorithms = []Algorithm{
	AlgorithmBLAKE3,
	AlgorithmSHA256,
	AlgorithmSHA512,
	AlgorithmSHA1,
	AlgorithmMD5,
}
