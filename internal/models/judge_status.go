package models

// Judge result codes shared with the judge server.
const (
	JudgeStatusCompileError          = -2
	JudgeStatusWrongAnswer           = -1
	JudgeStatusAccepted              = 0
	JudgeStatusCPUTimeLimitExceeded  = 1
	JudgeStatusRealTimeLimitExceeded = 2
	JudgeStatusMemoryLimitExceeded   = 3
	JudgeStatusRuntimeError          = 4
	JudgeStatusSystemError           = 5
	JudgeStatusPending               = 6
	JudgeStatusJudging               = 7
	JudgeStatusPartiallyAccepted     = 8
)

// ValidJudgeStatus reports whether code is a known judge result.
func ValidJudgeStatus(code int) bool {
	return code >= JudgeStatusCompileError && code <= JudgeStatusPartiallyAccepted
}

// IsFinalJudgeStatus reports whether the judge is done with a submission.
func IsFinalJudgeStatus(code int) bool {
	return ValidJudgeStatus(code) && code != JudgeStatusPending && code != JudgeStatusJudging
}
