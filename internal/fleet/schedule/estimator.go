package schedule

import (
	"hash/fnv"
	"strconv"
	"time"
)

const hoursModulus = 24

// EstimateRideDuration maps a pincode pair to a deterministic ride duration.
// Numeric pincodes yield abs(from-to) mod 24 hours. Non-numeric codes fall
// back to the same arithmetic over FNV-1a hashes of the codes, keeping the
// function total and side-effect free for any pair of non-empty strings.
// A zero duration is valid and produces a zero-width booking window.
func EstimateRideDuration(fromPincode, toPincode string) time.Duration {
	return time.Duration(EstimateRideHours(fromPincode, toPincode)) * time.Hour
}

// EstimateRideHours returns the estimate as whole hours in [0, 24).
func EstimateRideHours(fromPincode, toPincode string) int64 {
	from, fromOK := parsePincode(fromPincode)
	to, toOK := parsePincode(toPincode)
	if !fromOK || !toOK {
		from = int64(hashPincode(fromPincode))
		to = int64(hashPincode(toPincode))
	}
	diff := from - to
	if diff < 0 {
		diff = -diff
	}
	return diff % hoursModulus
}

func parsePincode(code string) (int64, bool) {
	n, err := strconv.ParseInt(code, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func hashPincode(code string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(code))
	return h.Sum32()
}
