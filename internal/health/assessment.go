package health

import (
	"fmt"
	"math"
	"time"
)

const (
	penaltyCriticalDrift   = 0.3
	penaltyWarningDrift    = 0.7
	penaltyCriticalQuality = 0.2
	penaltyWarningQuality  = 0.6
	penaltyUnstable        = 0.5
	penaltyDisconnect      = 0.1
	penaltyFewSyncPoints   = 0.4
)

// assess scores metrics against thresholds. Each detected issue multiplies the score down.
func assess(metrics SyncMetrics, thresholds Thresholds, now time.Time) Assessment {
	issues := []string{}
	recommendations := []string{}
	score := 1.0

	offset := math.Abs(metrics.AverageOffset)
	switch {
	case offset > thresholds.DriftCritical:
		score *= penaltyCriticalDrift
		issues = append(issues, fmt.Sprintf("High drift: %.1fms", metrics.AverageOffset*1000))
		recommendations = append(recommendations, "Manually adjust sync offset or recalibrate")
	case offset > thresholds.DriftWarning:
		score *= penaltyWarningDrift
		issues = append(issues, fmt.Sprintf("Moderate drift: %.1fms", metrics.AverageOffset*1000))
		recommendations = append(recommendations, "Monitor drift and consider sync adjustment")
	}

	switch {
	case metrics.QualityScore < thresholds.QualityCritical:
		score *= penaltyCriticalQuality
		issues = append(issues, fmt.Sprintf("Very low sync quality: %.0f%%", metrics.QualityScore*100))
		recommendations = append(recommendations, "Check audio and MIDI signal quality")
	case metrics.QualityScore < thresholds.QualityWarning:
		score *= penaltyWarningQuality
		issues = append(issues, fmt.Sprintf("Low sync quality: %.0f%%", metrics.QualityScore*100))
		recommendations = append(recommendations, "Verify audio/MIDI timing alignment")
	}

	if !metrics.IsStable {
		score *= penaltyUnstable
		issues = append(issues, "Unstable synchronization detected")
		recommendations = append(recommendations, "Check for timing inconsistencies in input sources")
	}

	if now.Sub(metrics.LastSyncTime) > thresholds.DisconnectTimeout {
		score *= penaltyDisconnect
		issues = append(issues, "No recent sync points detected")
		recommendations = append(recommendations, "Verify MIDI and audio sources are active")
	}

	if metrics.SyncPointCount < 2 {
		score *= penaltyFewSyncPoints
		issues = append(issues, "Insufficient sync points for accurate timing")
		recommendations = append(recommendations, "Allow more time for sync point collection")
	}

	score = math.Max(0, math.Min(1, score))
	return Assessment{
		Overall:         ratingFor(score),
		Score:           score,
		Issues:          issues,
		Recommendations: recommendations,
	}
}

func ratingFor(score float64) Rating {
	switch {
	case score > 0.9:
		return RatingExcellent
	case score > 0.7:
		return RatingGood
	case score > 0.5:
		return RatingFair
	case score > 0.3:
		return RatingPoor
	default:
		return RatingCritical
	}
}
