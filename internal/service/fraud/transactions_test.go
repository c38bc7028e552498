package fraud

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/davidleathers/deepguard-backend/internal/domain/risk"
)

func tx(user string, amount int64, location string, at time.Time) risk.Transaction {
	return risk.Transaction{
		UserID:    user,
		Amount:    decimal.NewFromInt(amount),
		Currency:  "INR",
		Location:  location,
		Timestamp: at,
	}
}

func TestWindowAnalyzer_Analyze(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name                 string
		batch                []risk.Transaction
		expectedScore        float64
		expectedAccumulation bool
		expectedDispersion   bool
		expectedBurst        bool
	}{
		{
			name: "three small transfers in thirty seconds only burst",
			batch: []risk.Transaction{
				tx("u1", 9000, "Jamtara", base),
				tx("u1", 9000, "Jamtara", base.Add(15*time.Second)),
				tx("u1", 9000, "Jamtara", base.Add(30*time.Second)),
			},
			expectedScore: 0.3,
			expectedBurst: true,
		},
		{
			name: "three distinct locations is dispersion",
			batch: []risk.Transaction{
				tx("u1", 200000, "A", base),
				tx("u2", 150000, "B", base.Add(time.Hour)),
				tx("u3", 120000, "C", base.Add(2*time.Hour)),
			},
			expectedScore:      0.3,
			expectedDispersion: true,
		},
		{
			name: "accumulation over ceiling",
			batch: []risk.Transaction{
				tx("u1", 9999, "A", base),
				tx("u1", 9999, "A", base.Add(2*time.Hour)),
				tx("u1", 9999, "A", base.Add(4*time.Hour)),
				tx("u1", 9999, "A", base.Add(6*time.Hour)),
				tx("u1", 9999, "A", base.Add(8*time.Hour)),
				tx("u1", 9999, "A", base.Add(10*time.Hour)),
			},
			expectedScore:        0.4,
			expectedAccumulation: true,
		},
		{
			name: "amount at small limit is excluded",
			batch: []risk.Transaction{
				tx("u1", 10000, "A", base),
				tx("u1", 10000, "A", base.Add(2*time.Hour)),
				tx("u1", 10000, "A", base.Add(4*time.Hour)),
				tx("u1", 10000, "A", base.Add(6*time.Hour)),
				tx("u1", 10000, "A", base.Add(8*time.Hour)),
				tx("u1", 10000, "A", base.Add(10*time.Hour)),
			},
			expectedScore: 0,
		},
		{
			name: "two rapid transactions are below the burst minimum",
			batch: []risk.Transaction{
				tx("u1", 100, "A", base),
				tx("u2", 100, "A", base.Add(time.Second)),
			},
			expectedScore: 0,
		},
		{
			name: "undated transactions never burst",
			batch: []risk.Transaction{
				tx("u1", 100, "Delhi", time.Time{}),
				tx("u1", 100, "Delhi", time.Time{}),
				tx("u1", 100, "Delhi", time.Time{}),
			},
			expectedScore: 0,
		},
		{
			name: "one dated transaction among undated ones",
			batch: []risk.Transaction{
				tx("u1", 100, "Delhi", base),
				tx("u1", 100, "Delhi", time.Time{}),
				tx("u1", 100, "Delhi", time.Time{}),
			},
			expectedScore: 0,
		},
		{
			name: "unsorted input is sorted before deltas",
			batch: []risk.Transaction{
				tx("u1", 100, "A", base.Add(10*time.Minute)),
				tx("u2", 100, "A", base),
				tx("u3", 100, "A", base.Add(10*time.Minute+30*time.Second)),
			},
			expectedScore: 0.3,
			expectedBurst: true,
		},
		{
			name: "every detector clamps to one",
			batch: []risk.Transaction{
				tx("u1", 9500, "A", base),
				tx("u1", 9500, "B", base.Add(10*time.Second)),
				tx("u1", 9500, "C", base.Add(20*time.Second)),
				tx("u1", 9500, "D", base.Add(30*time.Second)),
				tx("u1", 9500, "E", base.Add(40*time.Second)),
				tx("u1", 9500, "F", base.Add(50*time.Second)),
			},
			expectedScore:        1.0,
			expectedAccumulation: true,
			expectedDispersion:   true,
			expectedBurst:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewWindowAnalyzer(DefaultConfig().Transactions)

			got := a.Analyze(tt.batch)

			assert.InDelta(t, tt.expectedScore, got.RiskScore.Float64(), 1e-9)
			assert.Equal(t, tt.expectedAccumulation, got.Accumulation)
			assert.Equal(t, tt.expectedDispersion, got.Dispersion)
			assert.Equal(t, tt.expectedBurst, got.Burst)
			assert.Equal(t, len(tt.batch), got.TransactionCount)
		})
	}
}

func TestWindowAnalyzer_Evidence(t *testing.T) {
	base := time.Now()
	batch := []risk.Transaction{
		tx("u1", 9000, "A", base),
		tx("u1", 500, "B", base.Add(time.Hour)),
		tx("u2", 20000, "A", base.Add(2*time.Hour)),
	}

	res, analysis := NewWindowAnalyzer(TransactionConfig{}).Score(batch)

	assert.Equal(t, map[string]float64{"u1": 9500}, analysis.SmallTransactionTotals)
	assert.Equal(t, map[string]int{"A": 2, "B": 1}, analysis.LocationCounts)
	assert.Equal(t, risk.ChannelTransaction, res.Channel)
	assert.Equal(t, analysis.RiskScore, res.RiskScore)
	assert.Equal(t, 3, res.Evidence["transaction_count"])
}

func TestWindowAnalyzer_Stateless(t *testing.T) {
	base := time.Now()
	a := NewWindowAnalyzer(TransactionConfig{})
	batch := []risk.Transaction{
		tx("u1", 9000, "A", base),
		tx("u1", 9000, "A", base.Add(2*time.Hour)),
	}

	first := a.Analyze(batch)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, a.Analyze(batch))
	}
	assert.False(t, first.Accumulation)
}

func TestWindowAnalyzer_PreservesInputOrder(t *testing.T) {
	base := time.Now()
	batch := []risk.Transaction{
		tx("late", 1, "A", base.Add(time.Hour)),
		tx("early", 1, "A", base),
		tx("mid", 1, "A", base.Add(time.Minute)),
	}

	NewWindowAnalyzer(TransactionConfig{}).Analyze(batch)

	assert.Equal(t, "late", batch[0].UserID)
	assert.Equal(t, "early", batch[1].UserID)
}
