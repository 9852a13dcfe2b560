package labexam

// Version is the release of the labexam module and binary.
const Version = "0.4.0"
