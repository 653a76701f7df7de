// Package retention stamps expiry dates onto audit entries at write time
// and sweeps expired entries into the archive sink on a schedule.
package retention
