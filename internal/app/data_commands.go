package app

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kelreel/sonichash/internal/actions"
	clierr "github.com/kelreel/sonichash/internal/errors"
	"github.com/kelreel/sonichash/internal/execution"
	"github.com/kelreel/sonichash/internal/model"
	"github.com/kelreel/sonichash/internal/prices"
	"github.com/kelreel/sonichash/internal/registry"
)

func (s *runtimeState) newPortfolioCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio <address>",
		Short: "Wallet balances, USD valuation and holdings breakdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			snap, err := s.svc.portfolio.Snapshot(cmd.Context(), args[0])
			status := []model.ProviderStatus{model.Observe("sonic-rpc", start, err)}
			if err != nil {
				s.lastProviders = status
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), snap, nil, status)
		},
	}
}

func (s *runtimeState) newPricesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prices [symbols...]",
		Short: "USD prices for tracked symbols",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			symbols := registry.MarketSymbols
			if len(args) > 0 {
				symbols = nil
				for _, arg := range args {
					for _, sym := range strings.Split(arg, ",") {
						if sym = strings.TrimSpace(sym); sym != "" {
							symbols = append(symbols, sym)
						}
					}
				}
			}
			start := time.Now()
			quotes := s.svc.prices.Prices(cmd.Context(), symbols)
			status := []model.ProviderStatus{model.Observe("coingecko", start, nil)}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), prices.Sorted(quotes, symbols), nil, status)
		},
	}
}

func (s *runtimeState) newPersonasCommand() *cobra.Command {
	root := &cobra.Command{Use: "personas", Short: "Persona definitions"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List personas in the persona directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := s.svc.personas.List(cmd.Context())
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil, nil)
		},
	}
	show := &cobra.Command{
		Use:   "show <persona-id>",
		Short: "Show one persona",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := s.svc.personas.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), p, nil, nil)
		},
	}
	root.AddCommand(list, show)
	return root
}

type detectResult struct {
	Action *actions.Action `json:"action"`
}

func (s *runtimeState) newActionsCommand() *cobra.Command {
	root := &cobra.Command{Use: "actions", Short: "Action detection and recorded plans"}

	types := &cobra.Command{
		Use:   "types",
		Short: "List action types with their parameter schemas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), actions.Specs(), nil, nil)
		},
	}

	detect := &cobra.Command{
		Use:   "detect <message...>",
		Short: "Classify a message into an action without executing it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			action := s.svc.detector.Detect(cmd.Context(), strings.Join(args, " "))
			status := []model.ProviderStatus{model.Observe(s.svc.llm.Info().Name, start, nil)}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), detectResult{Action: action}, nil, status)
		},
	}

	var (
		intent string
		limit  int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded action plans, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.svc.planStore()
			if err != nil {
				return err
			}
			plans, err := store.List(cmd.Context(), strings.ToUpper(strings.TrimSpace(intent)), limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list action plans", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), plans, nil, nil)
		},
	}
	list.Flags().StringVar(&intent, "intent", "", "Filter by action type (SEND_TOKENS, SWAP_TOKENS)")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum plans to return")

	show := &cobra.Command{
		Use:   "show <plan-id>",
		Short: "Show one recorded action plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := s.loadPlan(cmd, args[0])
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), plan, nil, nil)
		},
	}

	var (
		stepIDs       string
		gasMultiplier float64
		maxFeeGwei    string
		maxTipGwei    string
		blockTag      string
	)
	estimate := &cobra.Command{
		Use:   "estimate <plan-id>",
		Short: "Estimate network fees for a recorded action plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := s.loadPlan(cmd, args[0])
			if err != nil {
				return err
			}
			opts := execution.DefaultEstimateOptions()
			opts.StepIDs = strings.Split(stepIDs, ",")
			opts.GasMultiplier = gasMultiplier
			opts.MaxFeeGwei = maxFeeGwei
			opts.MaxPriorityFeeGwei = maxTipGwei
			opts.BlockTag = execution.BlockTag(blockTag)

			start := time.Now()
			est, err := execution.NewFeeEstimator(s.settings.RPCURL).Estimate(cmd.Context(), plan, opts)
			status := []model.ProviderStatus{model.Observe("sonic-rpc", start, err)}
			if err != nil {
				s.lastProviders = status
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), est, nil, status)
		},
	}
	estimate.Flags().StringVar(&stepIDs, "step-ids", "", "Only estimate these step ids (comma-separated)")
	estimate.Flags().Float64Var(&gasMultiplier, "gas-multiplier", 1.2, "Gas limit multiplier over the raw estimate")
	estimate.Flags().StringVar(&maxFeeGwei, "max-fee-gwei", "", "Override max fee per gas")
	estimate.Flags().StringVar(&maxTipGwei, "max-priority-fee-gwei", "", "Override priority fee per gas")
	estimate.Flags().StringVar(&blockTag, "block-tag", "pending", "Block tag for estimation (pending or latest)")

	root.AddCommand(types, detect, list, show, estimate)
	return root
}

func (s *runtimeState) loadPlan(cmd *cobra.Command, planID string) (execution.Plan, error) {
	store, err := s.svc.planStore()
	if err != nil {
		return execution.Plan{}, err
	}
	plan, err := store.Get(cmd.Context(), strings.TrimSpace(planID))
	if err != nil {
		if errors.Is(err, execution.ErrPlanNotFound) {
			return execution.Plan{}, clierr.Wrap(clierr.CodeNotFound, "action plan not found", err)
		}
		return execution.Plan{}, clierr.Wrap(clierr.CodeInternal, "load action plan", err)
	}
	return plan, nil
}
