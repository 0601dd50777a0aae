package dirhash

import "fmt"

// Kind identifies which variant of WorkStatus an event is.
type Kind int

// Constants representing the four event kinds of a hashing run.
const (
	KindStarted Kind = iota + 1
	KindProgress
	KindResult
	KindError
)

var kindNames = [...]string{
	KindStarted:  "started",
	KindProgress: "progress",
	KindResult:   "result",
	KindError:    "error",
}

func (k Kind) String() string {
	if k > 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsTerminal reports whether no event may follow one of this kind.
func (k Kind) IsTerminal() bool {
	return k == KindResult || k == KindError
}

// WorkStatus is a single event of a hashing run. The set of implementations is
// closed: Started, Progress, Result and Error.
type WorkStatus interface {
	Kind() Kind
	workStatus()
}

// Started is emitted exactly once, before any Progress event.
type Started struct {
	TotalFiles int `json:"totalFiles"`
}

// Progress is emitted once per successfully hashed file. TotalHashedFiles counts
// the files hashed so far, starting at 1.
type Progress struct {
	CurrentFile      string `json:"currentFile"`
	TotalHashedFiles int    `json:"totalHashedFiles"`
}

// Result terminates a successful run. Hashes maps root-relative, slash-separated
// paths to lowercase hex digests.
type Result struct {
	Hashes map[string]string `json:"hashes"`
}

// Error terminates a run that could not complete.
type Error struct {
	Cause error `json:"-"`
}

func (Started) Kind() Kind  { return KindStarted }
func (Progress) Kind() Kind { return KindProgress }
func (Result) Kind() Kind   { return KindResult }
func (Error) Kind() Kind    { return KindError }

func (Started) workStatus()  {}
func (Progress) workStatus() {}
func (Result) workStatus()   {}
func (Error) workStatus()    {}

// Error implements the error interface so a terminal Error event can be returned as is.
func (e Error) Error() string {
	if e.Cause == nil {
		return "hashing failed"
	}
	return e.Cause.Error()
}

// Unwrap exposes the cause to errors.Is / errors.As.
func (e Error) Unwrap() error { return e.Cause }

func (s Started) String() string { return fmt.Sprintf("Started(%d)", s.TotalFiles) }

func (p Progress) String() string {
	return fmt.Sprintf("Progress(%s, %d)", p.CurrentFile, p.TotalHashedFiles)
}

func (r Result) String() string { return fmt.Sprintf("Result(%d files)", len(r.Hashes)) }

// FileRecord is the outcome of hashing one file. It is owned by the worker that
// produced it until handed to the aggregator.
type FileRecord struct {
	Path string // root-relative, slash-separated
	Size int64  // bytes actually read
	Hash string // lowercase hex digest
}

// Algorithm names a supported content digest.
type Algorithm string

// Constants representing the supported digest algorithms.
const (
	AlgorithmBLAKE3 Algorithm = "blake3"
	AlgorithmSHA256 Algorithm = "sha256"
	AlgorithmSHA512 Algorithm = "sha512"
	AlgorithmSHA1   Algorithm = "sha1"
	AlgorithmMD5    Algorithm = "md5"
)

// SymlinkPolicy defines how symbolic links below the root are treated during enumeration.
type SymlinkPolicy string

const (
	// SymlinkSkip never follows links and never counts them.
	SymlinkSkip SymlinkPolicy = "skip"
	// SymlinkFollow resolves links, descending into linked directories with cycle detection.
	SymlinkFollow SymlinkPolicy = "follow"
)

// State is the lifecycle position of a single Stream run.
type State int32

const (
	StateIdle State = iota
	StateEnumerating
	StateStarted
	StateRunning
	StateDraining
	StateTerminated
)

var stateNames = [...]string{
	StateIdle:        "idle",
	StateEnumerating: "enumerating",
	StateStarted:     "started",
	StateRunning:     "running",
	StateDraining:    "draining",
	StateTerminated:  "terminated",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
