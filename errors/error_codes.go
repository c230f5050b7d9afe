package errors

import "strconv"

// ERR is the error code carried by every *Error.
type ERR int32

const (
	ERR_UNKNOWN          ERR = 0
	ERR_INVALID_ARGUMENT ERR = 1
	ERR_NOT_FOUND        ERR = 2
	ERR_PROCESSING       ERR = 3
	ERR_CONFIGURATION    ERR = 4
	ERR_CONTEXT          ERR = 5
	ERR_CONTEXT_CANCELED ERR = 6
	ERR_ERROR            ERR = 9
	// harness errors
	ERR_QUERY   ERR = 20
	ERR_TIMEOUT ERR = 21
	ERR_CLUSTER ERR = 22
	// service errors
	ERR_SERVICE_UNAVAILABLE ERR = 50
	ERR_NETWORK_TIMEOUT     ERR = 51
	ERR_SERVICE_ERROR       ERR = 52
)

var (
	ERR_name = map[int32]string{
		0:  "UNKNOWN",
		1:  "INVALID_ARGUMENT",
		2:  "NOT_FOUND",
		3:  "PROCESSING",
		4:  "CONFIGURATION",
		5:  "CONTEXT",
		6:  "CONTEXT_CANCELED",
		9:  "ERROR",
		20: "QUERY",
		21: "TIMEOUT",
		22: "CLUSTER",
		50: "SERVICE_UNAVAILABLE",
		51: "NETWORK_TIMEOUT",
		52: "SERVICE_ERROR",
	}

	ERR_value = map[string]int32{
		"UNKNOWN":             0,
		"INVALID_ARGUMENT":    1,
		"NOT_FOUND":           2,
		"PROCESSING":          3,
		"CONFIGURATION":       4,
		"CONTEXT":             5,
		"CONTEXT_CANCELED":    6,
		"ERROR":               9,
		"QUERY":               20,
		"TIMEOUT":             21,
		"CLUSTER":             22,
		"SERVICE_UNAVAILABLE": 50,
		"NETWORK_TIMEOUT":     51,
		"SERVICE_ERROR":       52,
	}
)

func (x ERR) Enum() *ERR {
	p := new(ERR)
	*p = x

	return p
}

func (x ERR) String() string {
	if name, ok := ERR_name[int32(x)]; ok {
		return name
	}

	return strconv.Itoa(int(x))
}
