package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"rebalancer/internal/engine"
	"rebalancer/internal/rebalance"
	"rebalancer/types"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

const (
	SourceCSV      = "csv"
	SourcePostgres = "postgres"
)

var one = decimal.NewFromInt(1)

var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrUnknownPreset = errors.New("unknown cost preset")
)

// Config mirrors the YAML run file.
type Config struct {
	Backtest BacktestSection `yaml:"backtest"`
	Source   SourceSection   `yaml:"source"`
	Strategy StrategySection `yaml:"strategy"`
	Costs    CostsSection    `yaml:"costs"`
	Output   OutputSection   `yaml:"output"`
}

type BacktestSection struct {
	StartDate         string          `yaml:"start_date"`
	EndDate           string          `yaml:"end_date"`
	InitialCapital    decimal.Decimal `yaml:"initial_capital"`
	Contribution      decimal.Decimal `yaml:"contribution"`
	WarmupDays        int             `yaml:"warmup_days"`
	RiskFreeRate      decimal.Decimal `yaml:"risk_free_rate"`
	AllowShortSelling bool            `yaml:"allow_short_selling"`
	ShowProgress      bool            `yaml:"show_progress"`
}

type SourceSection struct {
	Type        string `yaml:"type"`
	DataDir     string `yaml:"data_dir"`
	DatabaseURL string `yaml:"database_url"`
}

type AssetConfig struct {
	Symbol string          `yaml:"symbol"`
	Weight decimal.Decimal `yaml:"weight"`
}

type StrategySection struct {
	Type       string           `yaml:"type"`
	Assets     []AssetConfig    `yaml:"assets"`
	CashMargin *decimal.Decimal `yaml:"cash_margin"`
	SMAWindow  int              `yaml:"sma_window"`
	Rotation   RotationParams   `yaml:"rotation"`
	Seasonal   SeasonalParams   `yaml:"seasonal"`
}

type RotationParams struct {
	Hedges        []string        `yaml:"hedges"`
	MoveThreshold decimal.Decimal `yaml:"move_threshold"`
	Lookback      int             `yaml:"lookback"`
	ShortWindow   int             `yaml:"short_window"`
	LongWindow    int             `yaml:"long_window"`
}

type SeasonalParams struct {
	Equity     string          `yaml:"equity"`
	Bond       string          `yaml:"bond"`
	Weight     decimal.Decimal `yaml:"weight"`
	SwapMonths []int           `yaml:"swap_months"`
}

// CostsSection either names a preset ("ibkr", "none") or spells out the fee model.
type CostsSection struct {
	Preset         string          `yaml:"preset"`
	CommissionRate decimal.Decimal `yaml:"commission_rate"`
	MinCommission  decimal.Decimal `yaml:"min_commission"`
	MaxCommission  decimal.Decimal `yaml:"max_commission"`
}

type OutputSection struct {
	Path           string `yaml:"path"`
	ExecutionsFile string `yaml:"executions_file"`
	MetricsFile    string `yaml:"metrics_file"`
	SummaryFile    string `yaml:"summary_file"`
}

// LoadConfig reads a YAML run file. A .env file next to the working
// directory is loaded first and DATABASE_URL from the environment wins
// over the file.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML run file.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Source.DatabaseURL = url
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Source.Type == "" {
		c.Source.Type = SourceCSV
	}
	if c.Source.DataDir == "" {
		c.Source.DataDir = "data"
	}
	if c.Strategy.CashMargin == nil {
		margin := rebalance.DefaultCashMargin
		c.Strategy.CashMargin = &margin
	}
	if c.Strategy.SMAWindow == 0 {
		c.Strategy.SMAWindow = 10
	}
	r := &c.Strategy.Rotation
	if r.Lookback == 0 {
		r.Lookback = 4
	}
	if r.MoveThreshold.IsZero() {
		r.MoveThreshold = decimal.RequireFromString("0.01")
	}
	if r.ShortWindow == 0 {
		r.ShortWindow = 14
	}
	if r.LongWindow == 0 {
		r.LongWindow = 200
	}
	s := &c.Strategy.Seasonal
	if s.Weight.IsZero() {
		s.Weight = decimal.RequireFromString("0.9")
	}
	if len(s.SwapMonths) == 0 {
		s.SwapMonths = []int{7, 8}
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func (c *Config) validate() error {
	start, end, err := c.Dates()
	if err != nil {
		return err
	}
	if !end.After(start) {
		return invalid("end_date %s is not after start_date %s", c.Backtest.EndDate, c.Backtest.StartDate)
	}
	if c.Backtest.InitialCapital.IsNegative() || c.Backtest.Contribution.IsNegative() {
		return invalid("initial_capital and contribution must not be negative")
	}
	if c.Backtest.WarmupDays < 0 {
		return invalid("warmup_days must not be negative")
	}

	switch c.Source.Type {
	case SourceCSV:
	case SourcePostgres:
		if c.Source.DatabaseURL == "" {
			return invalid("postgres source needs database_url or DATABASE_URL")
		}
	default:
		return invalid("unknown source type %q", c.Source.Type)
	}

	if err := c.validateStrategy(); err != nil {
		return err
	}
	if _, err := c.ToFeeModel(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStrategy() error {
	s := c.Strategy
	if s.SMAWindow < 1 {
		return invalid("sma_window must be positive, got %d", s.SMAWindow)
	}
	if err := (rebalance.Config{CashMargin: c.CashMargin()}).Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch s.Type {
	case "buyhold", "smatopup", "rotation":
		if len(s.Assets) == 0 {
			return invalid("strategy %s needs at least one asset", s.Type)
		}
	case "seasonal":
		if s.Seasonal.Equity == "" || s.Seasonal.Bond == "" {
			return invalid("seasonal strategy needs equity and bond tickers")
		}
		if !s.Seasonal.Weight.IsPositive() || s.Seasonal.Weight.GreaterThan(one) {
			return invalid("seasonal weight must be in (0, 1], got %s", s.Seasonal.Weight)
		}
		for _, m := range s.Seasonal.SwapMonths {
			if m < 1 || m > 12 {
				return invalid("swap month %d out of range", m)
			}
		}
	default:
		return invalid("unknown strategy type %q", s.Type)
	}

	seen := make(map[string]bool)
	total := decimal.Zero
	for _, a := range s.Assets {
		if a.Symbol == "" {
			return invalid("asset without symbol")
		}
		if seen[a.Symbol] {
			return invalid("duplicate asset %s", a.Symbol)
		}
		seen[a.Symbol] = true
		if a.Weight.IsNegative() || a.Weight.GreaterThan(one) {
			return invalid("weight of %s must be in [0, 1], got %s", a.Symbol, a.Weight)
		}
		total = total.Add(a.Weight)
	}
	if total.GreaterThan(one) {
		return invalid("asset weights sum to %s, above 1", total)
	}

	if s.Type == "rotation" {
		r := s.Rotation
		if len(r.Hedges) == 0 {
			return invalid("rotation strategy needs at least one hedge")
		}
		if r.Lookback < 2 {
			return invalid("rotation lookback must be at least 2, got %d", r.Lookback)
		}
		if r.ShortWindow < 1 || r.LongWindow <= r.ShortWindow {
			return invalid("rotation windows must satisfy 0 < short_window < long_window")
		}
		if r.MoveThreshold.IsNegative() {
			return invalid("move_threshold must not be negative")
		}
	}
	return nil
}

// Dates parses the backtest start and end dates.
func (c *Config) Dates() (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, c.Backtest.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid start_date: %w", ErrInvalidConfig, err)
	}
	end, err := time.Parse(dateLayout, c.Backtest.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid end_date: %w", ErrInvalidConfig, err)
	}
	return start, end, nil
}

// Tickers lists every ticker the strategy trades or watches, in
// declaration order and without duplicates.
func (c *Config) Tickers() []string {
	tickers := c.Symbols()
	switch c.Strategy.Type {
	case "rotation":
		tickers = append(tickers, c.Strategy.Rotation.Hedges...)
	case "seasonal":
		tickers = append(tickers, c.Strategy.Seasonal.Equity, c.Strategy.Seasonal.Bond)
	}
	return lo.Uniq(lo.Compact(tickers))
}

// Symbols lists the configured assets in declaration order.
func (c *Config) Symbols() []string {
	return lo.Map(c.Strategy.Assets, func(a AssetConfig, _ int) string {
		return a.Symbol
	})
}

func (c *Config) Targets() types.TargetAllocation {
	targets := make(types.TargetAllocation, len(c.Strategy.Assets))
	for _, a := range c.Strategy.Assets {
		targets[a.Symbol] = a.Weight
	}
	return targets
}

func (c *Config) ToBacktestConfig() (*engine.BacktestConfig, error) {
	start, end, err := c.Dates()
	if err != nil {
		return nil, err
	}
	warmup := time.Duration(c.Backtest.WarmupDays) * 24 * time.Hour
	return engine.NewBacktestConfig(c.Tickers(), types.Day, start, end, warmup), nil
}

func (c *Config) ToPortfolioConfig() *engine.PortfolioConfig {
	return engine.NewPortfolioConfig(
		c.Backtest.InitialCapital,
		c.Backtest.AllowShortSelling,
	).WithContribution(c.Backtest.Contribution)
}

func (c *Config) ToReportingConfig() *engine.ReportingConfig {
	return engine.NewReportingConfig(
		c.Backtest.RiskFreeRate,
		c.Backtest.ShowProgress,
	).WithFiles(
		c.outputFile(c.Output.ExecutionsFile),
		c.outputFile(c.Output.MetricsFile),
		c.outputFile(c.Output.SummaryFile),
	)
}

func (c *Config) outputFile(name string) string {
	if name == "" || filepath.IsAbs(name) || c.Output.Path == "" {
		return name
	}
	return filepath.Join(c.Output.Path, name)
}

func (c *Config) ToFeeModel() (engine.FeeModel, error) {
	switch c.Costs.Preset {
	case "ibkr":
		return engine.IBKRFixedFees(), nil
	case "none":
		return engine.NoFees(), nil
	case "":
		costs := c.Costs
		if costs.CommissionRate.IsNegative() || costs.MinCommission.IsNegative() || costs.MaxCommission.IsNegative() {
			return engine.FeeModel{}, invalid("commissions must not be negative")
		}
		if costs.MaxCommission.IsPositive() && costs.MaxCommission.LessThan(costs.MinCommission) {
			return engine.FeeModel{}, invalid("max_commission is below min_commission")
		}
		return engine.FeeModel{
			Rate: costs.CommissionRate,
			Min:  costs.MinCommission,
			Max:  costs.MaxCommission,
		}, nil
	default:
		return engine.FeeModel{}, fmt.Errorf("%w: %q", ErrUnknownPreset, c.Costs.Preset)
	}
}

// CashMargin is the share of cash every strategy keeps back from buys.
func (c *Config) CashMargin() decimal.Decimal {
	if c.Strategy.CashMargin == nil {
		return rebalance.DefaultCashMargin
	}
	return *c.Strategy.CashMargin
}
