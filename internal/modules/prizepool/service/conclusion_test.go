package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"anoa.com/playquestrewards/internal/entity"
	ledgerRepo "anoa.com/playquestrewards/internal/modules/ledger/repository"
	"anoa.com/playquestrewards/internal/modules/prizepool/repository"
	userRepo "anoa.com/playquestrewards/internal/modules/user/repository"
	"anoa.com/playquestrewards/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type fakeTxManager struct {
	calls int
}

func (f *fakeTxManager) Transaction(fn func(tx *gorm.DB) error, opts ...*sql.TxOptions) error {
	f.calls++
	return fn(nil)
}

type mockPoolRepo struct {
	active       *entity.Prizepool
	dp           *entity.DailyPercentage
	dps          []entity.DailyPercentage
	lockAcquired bool

	dpWindowStart time.Time
	dpWindowEnd   time.Time
	deactivated   []uuid.UUID
	createdPools  []*entity.Prizepool
	createdDPs    [][]entity.DailyPercentage
}

func (m *mockPoolRepo) WithTx(tx *gorm.DB) repository.PrizepoolRepository { return m }

func (m *mockPoolRepo) FindActive(ctx context.Context) (*entity.Prizepool, error) {
	if m.active == nil {
		return nil, apperror.ErrNotFound
	}
	return m.active, nil
}

func (m *mockPoolRepo) FindDailyPercentage(ctx context.Context, poolID uuid.UUID, dayStart, dayEnd time.Time) (*entity.DailyPercentage, error) {
	m.dpWindowStart, m.dpWindowEnd = dayStart, dayEnd
	if m.dp == nil {
		return nil, apperror.ErrNotFound
	}
	return m.dp, nil
}

func (m *mockPoolRepo) ListDailyPercentages(ctx context.Context, poolID uuid.UUID) ([]entity.DailyPercentage, error) {
	return m.dps, nil
}

func (m *mockPoolRepo) Deactivate(ctx context.Context, poolID uuid.UUID) error {
	m.deactivated = append(m.deactivated, poolID)
	return nil
}

func (m *mockPoolRepo) CreateWithDailyPercentages(ctx context.Context, pool *entity.Prizepool, percentages []entity.DailyPercentage) error {
	m.createdPools = append(m.createdPools, pool)
	m.createdDPs = append(m.createdDPs, percentages)
	return nil
}

func (m *mockPoolRepo) TryConclusionLock(ctx context.Context, poolID uuid.UUID) (bool, error) {
	return m.lockAcquired, nil
}

type mockIncrementRepo struct {
	total int64
}

func (m *mockIncrementRepo) WithTx(tx *gorm.DB) repository.IncrementLogRepository { return m }
func (m *mockIncrementRepo) Append(ctx context.Context, log *entity.IncrementLog) error {
	return nil
}
func (m *mockIncrementRepo) Total(ctx context.Context, poolID uuid.UUID) (int64, error) {
	return m.total, nil
}
func (m *mockIncrementRepo) FindByID(ctx context.Context, id uint) (*entity.IncrementLog, error) {
	return nil, apperror.ErrNotFound
}
func (m *mockIncrementRepo) Reverse(ctx context.Context, id uint) error { return nil }

type mockDistributionRepo struct {
	distributedTotal int64
	recentDaily      []uuid.UUID
	monthlyWeekly    []uuid.UUID
	existingDaily    []entity.Distribution
	existingWeekly   []entity.Distribution

	recentDailyExclude uuid.UUID
	weeklyExcludePool  uuid.UUID
	created            []entity.Distribution
	deletedDailyDPs    []uuid.UUID
	deletedWeeklyPools []uuid.UUID
}

func (m *mockDistributionRepo) WithTx(tx *gorm.DB) repository.DistributionRepository { return m }

func (m *mockDistributionRepo) DistributedTotal(ctx context.Context, poolID uuid.UUID) (int64, error) {
	return m.distributedTotal, nil
}

func (m *mockDistributionRepo) RecentDailyWinnerIDs(ctx context.Context, poolID uuid.UUID, since time.Time, excludeDailyPercentageID uuid.UUID) ([]uuid.UUID, error) {
	m.recentDailyExclude = excludeDailyPercentageID
	return m.recentDaily, nil
}

func (m *mockDistributionRepo) MonthlyWeeklyWinnerIDs(ctx context.Context, monthStart, monthEnd time.Time, excludePoolID uuid.UUID) ([]uuid.UUID, error) {
	m.weeklyExcludePool = excludePoolID
	return m.monthlyWeekly, nil
}

func (m *mockDistributionRepo) FindForDailyPercentage(ctx context.Context, dailyPercentageID uuid.UUID) ([]entity.Distribution, error) {
	return m.existingDaily, nil
}

func (m *mockDistributionRepo) FindWeeklyForPool(ctx context.Context, poolID uuid.UUID) ([]entity.Distribution, error) {
	return m.existingWeekly, nil
}

func (m *mockDistributionRepo) DeleteForDailyPercentage(ctx context.Context, dailyPercentageID uuid.UUID) error {
	m.deletedDailyDPs = append(m.deletedDailyDPs, dailyPercentageID)
	return nil
}

func (m *mockDistributionRepo) DeleteWeeklyForPool(ctx context.Context, poolID uuid.UUID) error {
	m.deletedWeeklyPools = append(m.deletedWeeklyPools, poolID)
	return nil
}

func (m *mockDistributionRepo) CreateBatch(ctx context.Context, rows []entity.Distribution) error {
	m.created = append(m.created, rows...)
	return nil
}

func (m *mockDistributionRepo) LastWin(ctx context.Context, userID uuid.UUID, distributionType string, since time.Time) (*entity.Distribution, error) {
	return nil, apperror.ErrNotFound
}

type rankCall struct {
	currency string
	start    time.Time
	end      time.Time
	excluded []uuid.UUID
	limit    int
}

type appendCall struct {
	userID      uuid.UUID
	details     []entity.TransactionDetail
	description string
	code        string
}

type mockLedgerRepo struct {
	ranked   []ledgerRepo.RankedUser
	rankCall *rankCall
	appended []appendCall
}

func (m *mockLedgerRepo) WithTx(tx *gorm.DB) ledgerRepo.LedgerRepository { return m }

func (m *mockLedgerRepo) Append(ctx context.Context, userID uuid.UUID, details []entity.TransactionDetail, description, code, extras string) error {
	m.appended = append(m.appended, appendCall{userID, details, description, code})
	return nil
}

func (m *mockLedgerRepo) Rank(ctx context.Context, currency string, start, end time.Time, excludedUserIDs []uuid.UUID, limit int) ([]ledgerRepo.RankedUser, error) {
	m.rankCall = &rankCall{currency, start, end, excludedUserIDs, limit}
	return m.ranked, nil
}

type creditCall struct {
	userID uuid.UUID
	amount int64
}

type mockUserRepo struct {
	credits    []creditCall
	resetCalls int
}

func (m *mockUserRepo) WithTx(tx *gorm.DB) userRepo.UserRepository { return m }
func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*entity.User, error) {
	return nil, apperror.ErrNotFound
}
func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	return nil, apperror.ErrNotFound
}
func (m *mockUserRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]entity.User, error) {
	return nil, nil
}
func (m *mockUserRepo) CreditCoins(ctx context.Context, userID uuid.UUID, amount int64) error {
	m.credits = append(m.credits, creditCall{userID, amount})
	return nil
}
func (m *mockUserRepo) ResetActivityPoints(ctx context.Context) error {
	m.resetCalls++
	return nil
}

type conclusionFixture struct {
	svc    *conclusionService
	txm    *fakeTxManager
	pools  *mockPoolRepo
	incs   *mockIncrementRepo
	dists  *mockDistributionRepo
	ledger *mockLedgerRepo
	users  *mockUserRepo
}

func newConclusionFixture(now time.Time, loc *time.Location) *conclusionFixture {
	f := &conclusionFixture{
		txm:    &fakeTxManager{},
		pools:  &mockPoolRepo{lockAcquired: true},
		incs:   &mockIncrementRepo{},
		dists:  &mockDistributionRepo{},
		ledger: &mockLedgerRepo{},
		users:  &mockUserRepo{},
	}
	svc := NewConclusionService(f.txm, f.pools, f.incs, f.dists, f.ledger, f.users, nil, loc).(*conclusionService)
	svc.now = func() time.Time { return now }
	f.svc = svc
	return f
}

var testLoc = time.FixedZone("UTC+7", 7*3600)

func TestConcludeDueNoActivePool(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 10, 0, 0, testLoc)
	f := newConclusionFixture(now, testLoc)

	ran, err := f.svc.ConcludeDue(context.Background())
	if !errors.Is(err, ErrNoActivePrizepool) {
		t.Fatalf("expected ErrNoActivePrizepool, got %v", err)
	}
	if ran {
		t.Error("expected no settlement to run")
	}
}

func TestConcludeDueDailySettlement(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 10, 0, 0, testLoc)
	f := newConclusionFixture(now, testLoc)

	poolID := uuid.MustParse("10000000-0000-0000-0000-000000000000")
	dpID := uuid.MustParse("20000000-0000-0000-0000-000000000000")
	u1 := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	u2 := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	u3 := uuid.MustParse("00000000-0000-0000-0000-000000000003")

	f.pools.active = &entity.Prizepool{
		ID:                        poolID,
		BasePoolValue:             1000000,
		StartDate:                 time.Date(2026, 3, 9, 0, 0, 0, 0, testLoc),
		EndDate:                   time.Date(2026, 3, 16, 0, 0, 0, 0, testLoc),
		DailyDistributionWeights:  entity.Weights{0.5, 0.3, 0.2},
		WeeklyDistributionWeights: entity.Weights{0.4, 0.3, 0.3},
		IsActive:                  true,
	}
	f.pools.dp = &entity.DailyPercentage{ID: dpID, PrizepoolID: poolID, Percentage: 0.1}
	f.incs.total = 5000
	f.ledger.ranked = []ledgerRepo.RankedUser{
		{UserID: u1, TotalValue: 120},
		{UserID: u2, TotalValue: 90},
		{UserID: u3, TotalValue: 40},
	}

	ran, err := f.svc.ConcludeDue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Fatal("expected the daily settlement to run")
	}

	if len(f.dists.created) != 3 {
		t.Fatalf("expected 3 distributions, got %d", len(f.dists.created))
	}
	wantValues := []int64{50250, 30150, 20100}
	for i, d := range f.dists.created {
		if d.Value != wantValues[i] {
			t.Errorf("distribution %d: value = %d, want %d", i, d.Value, wantValues[i])
		}
		if d.Type != entity.DistributionTypeDaily {
			t.Errorf("distribution %d: type = %q, want daily", i, d.Type)
		}
		if d.DailyPercentageID == nil || *d.DailyPercentageID != dpID {
			t.Errorf("distribution %d: not linked to the settled day", i)
		}
		if d.Position != i+1 {
			t.Errorf("distribution %d: position = %d, want %d", i, d.Position, i+1)
		}
		if !d.CreatedAt.Equal(now) {
			t.Errorf("distribution %d: created_at = %v, want the settlement clock %v", i, d.CreatedAt, now)
		}
	}

	if len(f.users.credits) != 3 {
		t.Fatalf("expected 3 coin credits, got %d", len(f.users.credits))
	}
	if f.users.credits[0].userID != u1 || f.users.credits[0].amount != 50250 {
		t.Errorf("first credit = %+v, want %s +50250", f.users.credits[0], u1)
	}

	if len(f.ledger.appended) != 3 {
		t.Fatalf("expected 3 ledger entries, got %d", len(f.ledger.appended))
	}
	if f.ledger.appended[0].code != "prizepool_daily" {
		t.Errorf("ledger code = %q, want prizepool_daily", f.ledger.appended[0].code)
	}
	detail := f.ledger.appended[0].details[0]
	if detail.Currency != entity.CurrencyCoin || detail.Type != entity.MovementCredit || detail.Value != 50250 {
		t.Errorf("unexpected ledger detail: %+v", detail)
	}

	// Ranking window is yesterday as a half-open local-day interval.
	wantStart := time.Date(2026, 3, 9, 0, 0, 0, 0, testLoc)
	wantEnd := time.Date(2026, 3, 10, 0, 0, 0, 0, testLoc)
	if f.ledger.rankCall == nil {
		t.Fatal("Rank was never called")
	}
	if !f.ledger.rankCall.start.Equal(wantStart) || !f.ledger.rankCall.end.Equal(wantEnd) {
		t.Errorf("rank window [%v, %v), want [%v, %v)", f.ledger.rankCall.start, f.ledger.rankCall.end, wantStart, wantEnd)
	}
	if f.ledger.rankCall.currency != entity.CurrencyActivityPoint {
		t.Errorf("rank currency = %q, want activity_point", f.ledger.rankCall.currency)
	}
	if f.ledger.rankCall.limit != 3 {
		t.Errorf("rank limit = %d, want 3", f.ledger.rankCall.limit)
	}

	// A prior winner's rows for this same day must not exclude a re-run's
	// own output.
	if f.dists.recentDailyExclude != dpID {
		t.Errorf("recent-winner query excluded %s, want %s", f.dists.recentDailyExclude, dpID)
	}
}

func TestConcludeDueDailyExcludesRecentWinners(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 10, 0, 0, testLoc)
	f := newConclusionFixture(now, testLoc)

	poolID := uuid.MustParse("10000000-0000-0000-0000-000000000000")
	prior := uuid.MustParse("00000000-0000-0000-0000-00000000000a")

	f.pools.active = &entity.Prizepool{
		ID:                        poolID,
		BasePoolValue:             1000,
		StartDate:                 time.Date(2026, 3, 9, 0, 0, 0, 0, testLoc),
		EndDate:                   time.Date(2026, 3, 16, 0, 0, 0, 0, testLoc),
		DailyDistributionWeights:  entity.Weights{1.0},
		WeeklyDistributionWeights: entity.Weights{1.0},
	}
	f.pools.dp = &entity.DailyPercentage{ID: uuid.New(), PrizepoolID: poolID, Percentage: 0.1}
	f.dists.recentDaily = []uuid.UUID{prior}

	if _, err := f.svc.ConcludeDue(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.ledger.rankCall == nil {
		t.Fatal("Rank was never called")
	}
	if len(f.ledger.rankCall.excluded) != 1 || f.ledger.rankCall.excluded[0] != prior {
		t.Errorf("excluded = %v, want [%s]", f.ledger.rankCall.excluded, prior)
	}
}

func TestConcludeDueDailyRerunReversesPriorPayouts(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 10, 0, 0, testLoc)
	f := newConclusionFixture(now, testLoc)

	poolID := uuid.MustParse("10000000-0000-0000-0000-000000000000")
	dpID := uuid.MustParse("20000000-0000-0000-0000-000000000000")
	u1 := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	f.pools.active = &entity.Prizepool{
		ID:                        poolID,
		BasePoolValue:             1000000,
		StartDate:                 time.Date(2026, 3, 9, 0, 0, 0, 0, testLoc),
		EndDate:                   time.Date(2026, 3, 16, 0, 0, 0, 0, testLoc),
		DailyDistributionWeights:  entity.Weights{1.0},
		WeeklyDistributionWeights: entity.Weights{1.0},
	}
	f.pools.dp = &entity.DailyPercentage{ID: dpID, PrizepoolID: poolID, Percentage: 0.1}
	f.dists.existingDaily = []entity.Distribution{
		{UserID: u1, Position: 1, Value: 100000, Type: entity.DistributionTypeDaily},
	}
	f.ledger.ranked = []ledgerRepo.RankedUser{{UserID: u1, TotalValue: 50}}

	if _, err := f.svc.ConcludeDue(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The prior payout is debited back before the fresh credit lands.
	if len(f.users.credits) != 2 {
		t.Fatalf("expected 2 credit calls, got %d", len(f.users.credits))
	}
	if f.users.credits[0].amount != -100000 {
		t.Errorf("reversal amount = %d, want -100000", f.users.credits[0].amount)
	}
	if f.users.credits[1].amount != 100000 {
		t.Errorf("fresh credit = %d, want 100000", f.users.credits[1].amount)
	}
	if len(f.dists.deletedDailyDPs) != 1 || f.dists.deletedDailyDPs[0] != dpID {
		t.Errorf("prior rows not deleted for %s", dpID)
	}
}

// storedDistributionRepo keeps committed rows in memory so totals, lookups
// and deletes observe each other, the way the real table does.
type storedDistributionRepo struct {
	mockDistributionRepo
	rows []entity.Distribution
}

func (m *storedDistributionRepo) WithTx(tx *gorm.DB) repository.DistributionRepository { return m }

func (m *storedDistributionRepo) DistributedTotal(ctx context.Context, poolID uuid.UUID) (int64, error) {
	var total int64
	for _, r := range m.rows {
		if r.PrizepoolID == poolID {
			total += r.Value
		}
	}
	return total, nil
}

func (m *storedDistributionRepo) FindForDailyPercentage(ctx context.Context, dailyPercentageID uuid.UUID) ([]entity.Distribution, error) {
	var out []entity.Distribution
	for _, r := range m.rows {
		if r.DailyPercentageID != nil && *r.DailyPercentageID == dailyPercentageID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *storedDistributionRepo) DeleteForDailyPercentage(ctx context.Context, dailyPercentageID uuid.UUID) error {
	kept := m.rows[:0]
	for _, r := range m.rows {
		if r.DailyPercentageID == nil || *r.DailyPercentageID != dailyPercentageID {
			kept = append(kept, r)
		}
	}
	m.rows = kept
	return nil
}

func (m *storedDistributionRepo) CreateBatch(ctx context.Context, rows []entity.Distribution) error {
	m.rows = append(m.rows, rows...)
	return nil
}

func TestConcludeDueDailyRerunCommitsSameValues(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 10, 0, 0, testLoc)

	poolID := uuid.MustParse("10000000-0000-0000-0000-000000000000")
	dpID := uuid.MustParse("20000000-0000-0000-0000-000000000000")
	u1 := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	txm := &fakeTxManager{}
	pools := &mockPoolRepo{lockAcquired: true}
	incs := &mockIncrementRepo{}
	dists := &storedDistributionRepo{}
	ledger := &mockLedgerRepo{}
	users := &mockUserRepo{}
	svc := NewConclusionService(txm, pools, incs, dists, ledger, users, nil, testLoc).(*conclusionService)
	svc.now = func() time.Time { return now }

	pools.active = &entity.Prizepool{
		ID:                        poolID,
		BasePoolValue:             1000000,
		StartDate:                 time.Date(2026, 3, 9, 0, 0, 0, 0, testLoc),
		EndDate:                   time.Date(2026, 3, 16, 0, 0, 0, 0, testLoc),
		DailyDistributionWeights:  entity.Weights{1.0},
		WeeklyDistributionWeights: entity.Weights{1.0},
	}
	pools.dp = &entity.DailyPercentage{ID: dpID, PrizepoolID: poolID, Percentage: 0.1}
	ledger.ranked = []ledgerRepo.RankedUser{{UserID: u1, TotalValue: 50}}

	if _, err := svc.ConcludeDue(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(dists.rows) != 1 {
		t.Fatalf("expected 1 committed row after first run, got %d", len(dists.rows))
	}
	firstValue := dists.rows[0].Value
	if firstValue != 100000 {
		t.Fatalf("first payout = %d, want 100000", firstValue)
	}

	// The re-run must not see its own prior payout in the distributed total.
	if _, err := svc.ConcludeDue(context.Background()); err != nil {
		t.Fatalf("re-run: %v", err)
	}
	if len(dists.rows) != 1 {
		t.Fatalf("expected 1 committed row after re-run, got %d", len(dists.rows))
	}
	if dists.rows[0].Value != firstValue {
		t.Errorf("re-run payout = %d, want %d", dists.rows[0].Value, firstValue)
	}
	if dists.rows[0].UserID != u1 || dists.rows[0].Position != 1 {
		t.Errorf("re-run changed the winner row: %+v", dists.rows[0])
	}

	// Coins converge too: +100000, then -100000 reversal, then +100000.
	var balance int64
	for _, c := range users.credits {
		balance += c.amount
	}
	if balance != firstValue {
		t.Errorf("net coin balance = %d, want %d", balance, firstValue)
	}
}

func TestConcludeDueSkipsWhenLockHeld(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 10, 0, 0, testLoc)
	f := newConclusionFixture(now, testLoc)
	f.pools.lockAcquired = false

	poolID := uuid.MustParse("10000000-0000-0000-0000-000000000000")
	f.pools.active = &entity.Prizepool{
		ID:                        poolID,
		BasePoolValue:             1000,
		StartDate:                 time.Date(2026, 3, 9, 0, 0, 0, 0, testLoc),
		EndDate:                   time.Date(2026, 3, 16, 0, 0, 0, 0, testLoc),
		DailyDistributionWeights:  entity.Weights{1.0},
		WeeklyDistributionWeights: entity.Weights{1.0},
	}
	f.pools.dp = &entity.DailyPercentage{ID: uuid.New(), PrizepoolID: poolID, Percentage: 0.1}

	ran, err := f.svc.ConcludeDue(context.Background())
	if err != nil {
		t.Fatalf("a held lock must not surface as an error, got %v", err)
	}
	if ran {
		t.Error("expected the settlement to be skipped")
	}
	if len(f.dists.created) != 0 || len(f.users.credits) != 0 {
		t.Error("no writes expected when the lock is held")
	}
}

func TestConcludeDueNoPendingDay(t *testing.T) {
	now := time.Date(2026, 3, 9, 0, 10, 0, 0, testLoc)
	f := newConclusionFixture(now, testLoc)

	// Cycle started today, so there is no percentage row for yesterday.
	f.pools.active = &entity.Prizepool{
		ID:                        uuid.New(),
		BasePoolValue:             1000,
		StartDate:                 time.Date(2026, 3, 9, 0, 0, 0, 0, testLoc),
		EndDate:                   time.Date(2026, 3, 16, 0, 0, 0, 0, testLoc),
		DailyDistributionWeights:  entity.Weights{1.0},
		WeeklyDistributionWeights: entity.Weights{1.0},
	}

	ran, err := f.svc.ConcludeDue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ran {
		t.Error("expected nothing to settle")
	}
	if f.txm.calls != 0 {
		t.Error("no transaction expected without a pending day")
	}
}

func TestConcludeDueWeeklySettlementRotatesCycle(t *testing.T) {
	now := time.Date(2026, 3, 16, 0, 10, 0, 0, testLoc)
	f := newConclusionFixture(now, testLoc)

	poolID := uuid.MustParse("10000000-0000-0000-0000-000000000000")
	u1 := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	u2 := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	startDate := time.Date(2026, 3, 9, 0, 0, 0, 0, testLoc)
	endDate := time.Date(2026, 3, 16, 0, 0, 0, 0, testLoc)
	f.pools.active = &entity.Prizepool{
		ID:                        poolID,
		Name:                      "Weekly Prizepool",
		BasePoolValue:             1000000,
		StartDate:                 startDate,
		EndDate:                   endDate,
		AdsRewardedIncrement:      500,
		DailyDistributionWeights:  entity.Weights{0.5, 0.3, 0.2},
		WeeklyDistributionWeights: entity.Weights{0.6, 0.4},
		IsActive:                  true,
	}
	f.pools.dps = []entity.DailyPercentage{
		{PrizepoolID: poolID, Date: startDate, Percentage: 0.1},
		{PrizepoolID: poolID, Date: startDate.AddDate(0, 0, 1), Percentage: 0.1},
	}
	f.incs.total = 10000
	f.dists.distributedTotal = 400000
	f.ledger.ranked = []ledgerRepo.RankedUser{
		{UserID: u1, TotalValue: 900},
		{UserID: u2, TotalValue: 700},
	}

	ran, err := f.svc.ConcludeDue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Fatal("expected the weekly settlement to run")
	}

	// available = 1,000,000 + 10,000 - 400,000 = 610,000
	if len(f.dists.created) != 2 {
		t.Fatalf("expected 2 distributions, got %d", len(f.dists.created))
	}
	if f.dists.created[0].Value != 366000 {
		t.Errorf("first weekly payout = %d, want 366000", f.dists.created[0].Value)
	}
	if f.dists.created[1].Value != 244000 {
		t.Errorf("second weekly payout = %d, want 244000", f.dists.created[1].Value)
	}
	for i, d := range f.dists.created {
		if d.Type != entity.DistributionTypeWeekly {
			t.Errorf("distribution %d: type = %q, want weekly", i, d.Type)
		}
		if d.DailyPercentageID != nil {
			t.Errorf("distribution %d: weekly payout must not reference a day", i)
		}
	}

	if f.ledger.rankCall == nil {
		t.Fatal("Rank was never called")
	}
	if !f.ledger.rankCall.start.Equal(startDate) || !f.ledger.rankCall.end.Equal(endDate) {
		t.Errorf("rank window [%v, %v), want whole cycle", f.ledger.rankCall.start, f.ledger.rankCall.end)
	}

	if len(f.pools.deactivated) != 1 || f.pools.deactivated[0] != poolID {
		t.Error("expected the concluded pool to be deactivated")
	}
	if len(f.pools.createdPools) != 1 {
		t.Fatal("expected a successor pool")
	}
	successor := f.pools.createdPools[0]
	if !successor.StartDate.Equal(startDate.AddDate(0, 0, 7)) || !successor.EndDate.Equal(endDate.AddDate(0, 0, 7)) {
		t.Errorf("successor dates [%v, %v), want the prior cycle shifted by 7 days", successor.StartDate, successor.EndDate)
	}
	if !successor.IsActive {
		t.Error("successor pool must be active")
	}
	if successor.BasePoolValue != 1000000 || successor.AdsRewardedIncrement != 500 {
		t.Error("successor pool must inherit the prior configuration")
	}
	if len(f.pools.createdDPs[0]) != 2 {
		t.Fatalf("expected 2 cloned percentage rows, got %d", len(f.pools.createdDPs[0]))
	}
	if !f.pools.createdDPs[0][0].Date.Equal(startDate.AddDate(0, 0, 7)) {
		t.Error("cloned percentage rows must shift by 7 days")
	}

	if f.users.resetCalls != 1 {
		t.Errorf("activity points reset %d times, want 1", f.users.resetCalls)
	}
	if f.dists.weeklyExcludePool != poolID {
		t.Errorf("monthly-winner query excluded pool %s, want %s", f.dists.weeklyExcludePool, poolID)
	}
	if f.ledger.appended[0].code != "prizepool_weekly" {
		t.Errorf("ledger code = %q, want prizepool_weekly", f.ledger.appended[0].code)
	}
}

func TestConcludeDueWeeklyNotDueMidCycle(t *testing.T) {
	now := time.Date(2026, 3, 12, 0, 10, 0, 0, testLoc)
	f := newConclusionFixture(now, testLoc)

	f.pools.active = &entity.Prizepool{
		ID:                        uuid.New(),
		BasePoolValue:             1000,
		StartDate:                 time.Date(2026, 3, 9, 0, 0, 0, 0, testLoc),
		EndDate:                   time.Date(2026, 3, 16, 0, 0, 0, 0, testLoc),
		DailyDistributionWeights:  entity.Weights{1.0},
		WeeklyDistributionWeights: entity.Weights{1.0},
	}

	if _, err := f.svc.ConcludeDue(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.pools.deactivated) != 0 {
		t.Error("pool must stay active mid-cycle")
	}
	if f.users.resetCalls != 0 {
		t.Error("activity points must not reset mid-cycle")
	}
}

func TestConcludeDueInvalidWeightsAbort(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 10, 0, 0, testLoc)
	f := newConclusionFixture(now, testLoc)

	poolID := uuid.New()
	f.pools.active = &entity.Prizepool{
		ID:                        poolID,
		BasePoolValue:             1000,
		StartDate:                 time.Date(2026, 3, 9, 0, 0, 0, 0, testLoc),
		EndDate:                   time.Date(2026, 3, 16, 0, 0, 0, 0, testLoc),
		DailyDistributionWeights:  entity.Weights{0.9, 0.9},
		WeeklyDistributionWeights: entity.Weights{1.0},
	}
	f.pools.dp = &entity.DailyPercentage{ID: uuid.New(), PrizepoolID: poolID, Percentage: 0.1}

	_, err := f.svc.ConcludeDue(context.Background())
	if err == nil {
		t.Fatal("expected an error for weights summing above 1")
	}
	if f.txm.calls != 0 {
		t.Error("no transaction expected with invalid weights")
	}
}
