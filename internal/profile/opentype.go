package profile

import "github.com/alanyoungcy/ibfadebot/internal/domain"

// Open-type thresholds, expressed against the eventual IB range and the
// one-minute bar sequence of the IB window. These encode the classic auction
// taxonomy: a drive is a one-way move a full IB range from the open with at
// most a 10% pullback; a test-drive allows a brief probe (up to 15 minutes)
// the other way first; a rejection-reverse is an early extreme that holds for
// at least 10 minutes while price trades back through the open.
const (
	driveMoveMult      = 1.0
	driveRetraceMult   = 0.10
	testDriveProbeBars = 15
	sustainedCloseFrac = 0.25
	rejectionHoldBars  = 10
)

// ClassifyOpenType classifies the opening auction from the IB window's bar
// sequence. ibRange is the finalized IB range; degenerate windows classify
// as OpenAuction.
func ClassifyOpenType(bars []domain.Bar, ibRange float64) domain.OpenType {
	if len(bars) == 0 || ibRange <= 0 {
		return domain.OpenAuction
	}
	open := bars[0].Open

	if isOpenDrive(bars, open, ibRange) {
		return domain.OpenDrive
	}
	if isOpenTestDrive(bars, open, ibRange) {
		return domain.OpenTestDrive
	}
	if isOpenRejectionReverse(bars, open, ibRange) {
		return domain.OpenRejectionReverse
	}
	return domain.OpenAuction
}

// isOpenDrive checks for a monotone move of at least one IB range away from
// the open with no retracement beyond 10% of that range.
func isOpenDrive(bars []domain.Bar, open, ibRange float64) bool {
	up := drivesClear(bars, open, ibRange, domain.Long)
	down := drivesClear(bars, open, ibRange, domain.Short)
	return up || down
}

// drivesClear walks the window in the given direction (Long = upward drive),
// tracking the furthest favorable excursion from the open and the deepest
// pullback from the running extreme.
func drivesClear(bars []domain.Bar, open, ibRange float64, dir domain.Direction) bool {
	extreme := open
	maxMove := 0.0
	maxRetrace := 0.0
	for _, b := range bars {
		if dir == domain.Long {
			if b.High > extreme {
				extreme = b.High
			}
			if move := extreme - open; move > maxMove {
				maxMove = move
			}
			if retrace := extreme - b.Low; retrace > maxRetrace {
				maxRetrace = retrace
			}
		} else {
			if b.Low < extreme {
				extreme = b.Low
			}
			if move := open - extreme; move > maxMove {
				maxMove = move
			}
			if retrace := b.High - extreme; retrace > maxRetrace {
				maxRetrace = retrace
			}
		}
	}
	return maxMove >= driveMoveMult*ibRange && maxRetrace <= driveRetraceMult*ibRange
}

// isOpenTestDrive checks for a brief probe in one direction followed by a
// sustained move of at least one IB range the other way. The probe ends on
// the bar that set its extreme, capped at testDriveProbeBars; everything
// after that is the drive. Both probe directions are tried, so a drive that
// starts inside the cap cannot swallow the probe.
func isOpenTestDrive(bars []domain.Bar, open, ibRange float64) bool {
	span := len(bars)
	if span > testDriveProbeBars {
		span = testDriveProbeBars
	}
	probeHigh, highEnd := open, 0
	probeLow, lowEnd := open, 0
	for i, b := range bars[:span] {
		if b.High >= probeHigh {
			probeHigh, highEnd = b.High, i
		}
		if b.Low <= probeLow {
			probeLow, lowEnd = b.Low, i
		}
	}

	// Probe up, drive down. The move must be sustained, not a rotation leg:
	// the window has to close near the drive extreme.
	if probeHigh > open {
		if rest := bars[highEnd+1:]; len(rest) > 0 {
			low := probeHigh
			for _, b := range rest {
				if b.Low < low {
					low = b.Low
				}
			}
			finalClose := rest[len(rest)-1].Close
			if probeHigh-low >= driveMoveMult*ibRange &&
				finalClose-low <= sustainedCloseFrac*ibRange {
				return true
			}
		}
	}
	// Probe down, drive up.
	if probeLow < open {
		if rest := bars[lowEnd+1:]; len(rest) > 0 {
			high := probeLow
			for _, b := range rest {
				if b.High > high {
					high = b.High
				}
			}
			finalClose := rest[len(rest)-1].Close
			if high-probeLow >= driveMoveMult*ibRange &&
				high-finalClose <= sustainedCloseFrac*ibRange {
				return true
			}
		}
	}
	return false
}

// isOpenRejectionReverse checks whether one side was tested early, held
// untouched for the hold period, and price reversed back through the open.
// The reversal has to stick: the window must close near its extreme on the
// reversal side, which keeps two-sided rotations out.
func isOpenRejectionReverse(bars []domain.Bar, open, ibRange float64) bool {
	highIdx, lowIdx := 0, 0
	for i, b := range bars {
		if b.High > bars[highIdx].High {
			highIdx = i
		}
		if b.Low < bars[lowIdx].Low {
			lowIdx = i
		}
	}
	finalClose := bars[len(bars)-1].Close
	maxHigh := bars[highIdx].High
	minLow := bars[lowIdx].Low

	// High tested, never re-approached, close back below the open.
	if maxHigh > open &&
		len(bars)-1-highIdx >= rejectionHoldBars &&
		finalClose < open &&
		finalClose-minLow <= sustainedCloseFrac*ibRange {
		return true
	}
	// Low tested, never re-approached, close back above the open.
	if minLow < open &&
		len(bars)-1-lowIdx >= rejectionHoldBars &&
		finalClose > open &&
		maxHigh-finalClose <= sustainedCloseFrac*ibRange {
		return true
	}
	return false
}
