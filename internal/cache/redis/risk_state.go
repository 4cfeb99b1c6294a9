package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/ibfadebot/internal/domain"
)

// riskStateTTL keeps a day's ledger around long enough for post-session
// review before Redis expires it.
const riskStateTTL = 48 * 60 * 60 // seconds

// recordLua applies one realized R to the daily ledger in a single atomic
// step and returns the updated hash. Concurrent symbol engines recording
// closes never interleave partial updates.
const recordLua = `
local key = KEYS[1]
local r = tonumber(ARGV[1])
redis.call('HINCRBY', key, 'trades', 1)
redis.call('HINCRBYFLOAT', key, 'cum_r', r)
if r < 0 then
    redis.call('HINCRBY', key, 'losses', 1)
    redis.call('HINCRBY', key, 'consec_losses', 1)
else
    redis.call('HINCRBY', key, 'wins', 1)
    redis.call('HSET', key, 'consec_losses', 0)
end
redis.call('EXPIRE', key, ARGV[2])
return redis.call('HGETALL', key)
`

// RiskStateStore implements domain.RiskStateStore on a Redis hash so all
// symbol engines share one account-wide daily ledger.
type RiskStateStore struct {
	rdb      *redis.Client
	recordSc *redis.Script
}

// NewRiskStateStore creates a RiskStateStore backed by the given Client.
func NewRiskStateStore(c *Client) *RiskStateStore {
	return &RiskStateStore{
		rdb:      c.Underlying(),
		recordSc: redis.NewScript(recordLua),
	}
}

func riskKey(date string) string {
	return "ibfade:risk:" + date
}

// Load returns the ledger for the given date, zeroed if absent.
func (rs *RiskStateStore) Load(ctx context.Context, date string) (domain.DailyRiskState, error) {
	fields, err := rs.rdb.HGetAll(ctx, riskKey(date)).Result()
	if err != nil {
		return domain.DailyRiskState{}, fmt.Errorf("redis: load risk state %s: %w", date, err)
	}
	return riskStateFromFields(date, fields), nil
}

// Record atomically applies one realized R and returns the new ledger.
func (rs *RiskStateStore) Record(ctx context.Context, date string, realizedR float64) (domain.DailyRiskState, error) {
	result, err := rs.recordSc.Run(ctx, rs.rdb,
		[]string{riskKey(date)}, realizedR, riskStateTTL,
	).Slice()
	if err != nil {
		return domain.DailyRiskState{}, fmt.Errorf("redis: record risk state %s: %w", date, err)
	}

	// HGETALL via Lua comes back as a flat [field, value, ...] array.
	fields := make(map[string]string, len(result)/2)
	for i := 0; i+1 < len(result); i += 2 {
		f, fok := result[i].(string)
		v, vok := result[i+1].(string)
		if fok && vok {
			fields[f] = v
		}
	}
	return riskStateFromFields(date, fields), nil
}

// Reset clears the ledger for a new trading day.
func (rs *RiskStateStore) Reset(ctx context.Context, date string) error {
	if err := rs.rdb.Del(ctx, riskKey(date)).Err(); err != nil {
		return fmt.Errorf("redis: reset risk state %s: %w", date, err)
	}
	return nil
}

func riskStateFromFields(date string, fields map[string]string) domain.DailyRiskState {
	state := domain.DailyRiskState{Date: date}
	state.CumulativeR, _ = strconv.ParseFloat(fields["cum_r"], 64)
	state.ConsecutiveLosses, _ = strconv.Atoi(fields["consec_losses"])
	state.TradesToday, _ = strconv.Atoi(fields["trades"])
	state.Wins, _ = strconv.Atoi(fields["wins"])
	state.Losses, _ = strconv.Atoi(fields["losses"])
	return state
}

var _ domain.RiskStateStore = (*RiskStateStore)(nil)
