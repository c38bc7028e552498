package fraud

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/davidleathers/deepguard-backend/internal/domain/risk"
)

// WindowAnalysis explains which detectors fired for a batch.
type WindowAnalysis struct {
	SmallTransactionTotals map[string]float64 `json:"small_transaction_totals"`
	LocationCounts         map[string]int     `json:"location_counts"`
	TransactionCount       int                `json:"transaction_count"`
	Accumulation           bool               `json:"accumulation"`
	Dispersion             bool               `json:"dispersion"`
	Burst                  bool               `json:"burst"`
	RiskScore              risk.Score         `json:"risk_score"`
}

// WindowAnalyzer detects coordinated small-amount fraud within one batch.
// It holds no state between calls.
type WindowAnalyzer struct {
	smallAmount decimal.Decimal
	ceiling     decimal.Decimal
	cfg         TransactionConfig
}

// NewWindowAnalyzer creates an analyzer. Zero values fall back to defaults.
func NewWindowAnalyzer(cfg TransactionConfig) *WindowAnalyzer {
	def := DefaultConfig().Transactions
	if cfg.SmallAmount <= 0 {
		cfg.SmallAmount = def.SmallAmount
	}
	if cfg.AccumulationCeiling <= 0 {
		cfg.AccumulationCeiling = def.AccumulationCeiling
	}
	if cfg.MaxLocations <= 0 {
		cfg.MaxLocations = def.MaxLocations
	}
	if cfg.BurstWindow <= 0 {
		cfg.BurstWindow = def.BurstWindow
	}
	if cfg.BurstMinTransactions <= 0 {
		cfg.BurstMinTransactions = def.BurstMinTransactions
	}
	return &WindowAnalyzer{
		smallAmount: decimal.NewFromFloat(cfg.SmallAmount),
		ceiling:     decimal.NewFromFloat(cfg.AccumulationCeiling),
		cfg:         cfg,
	}
}

// Analyze runs the accumulation, dispersion and burst detectors over batch.
func (a *WindowAnalyzer) Analyze(batch []risk.Transaction) *WindowAnalysis {
	totals := make(map[string]decimal.Decimal)
	locations := make(map[string]int)
	for _, tx := range batch {
		if tx.Amount.LessThan(a.smallAmount) {
			totals[tx.UserID] = totals[tx.UserID].Add(tx.Amount)
		}
		locations[tx.Location]++
	}

	out := &WindowAnalysis{
		SmallTransactionTotals: make(map[string]float64, len(totals)),
		LocationCounts:         locations,
		TransactionCount:       len(batch),
	}

	var score float64
	for user, total := range totals {
		out.SmallTransactionTotals[user] = total.InexactFloat64()
		if total.GreaterThan(a.ceiling) {
			out.Accumulation = true
		}
	}
	if out.Accumulation {
		score += a.cfg.AccumulationFlag
	}

	if len(locations) > a.cfg.MaxLocations {
		out.Dispersion = true
		score += a.cfg.DispersionFlag
	}

	if len(batch) >= a.cfg.BurstMinTransactions && a.hasBurst(batch) {
		out.Burst = true
		score += a.cfg.BurstFlag
	}

	out.RiskScore = risk.NewScore(score)
	return out
}

// Score runs Analyze and wraps the outcome as a transaction channel result.
func (a *WindowAnalyzer) Score(batch []risk.Transaction) (risk.ChannelResult, *WindowAnalysis) {
	analysis := a.Analyze(batch)
	return risk.NewChannelResult(risk.ChannelTransaction, analysis.RiskScore.Float64(), map[string]interface{}{
		"transaction_count": analysis.TransactionCount,
		"accumulation":      analysis.Accumulation,
		"dispersion":        analysis.Dispersion,
		"burst":             analysis.Burst,
	}), analysis
}

// hasBurst sorts a copy of the timestamps; batch keeps its input order.
// Transactions without a timestamp never count towards a burst.
func (a *WindowAnalyzer) hasBurst(batch []risk.Transaction) bool {
	stamps := make([]time.Time, 0, len(batch))
	for _, tx := range batch {
		if !tx.Timestamp.IsZero() {
			stamps = append(stamps, tx.Timestamp)
		}
	}
	if len(stamps) < a.cfg.BurstMinTransactions {
		return false
	}
	sort.SliceStable(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	for i := 1; i < len(stamps); i++ {
		if stamps[i].Sub(stamps[i-1]) < a.cfg.BurstWindow {
			return true
		}
	}
	return false
}
