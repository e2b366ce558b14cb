package types

// Version is the canonical project version.
// The CLI, the event log frame format, and batch-completed notifications
// all report this value.
const Version = "0.1.0"

// ContractVersion is the version stamped on batch-completed notifications
// and event log headers. It moves in lockstep with Version.
const ContractVersion = Version
