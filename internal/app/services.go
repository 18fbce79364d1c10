package app

import (
	"github.com/rs/zerolog"

	"github.com/kelreel/sonichash/internal/actions"
	"github.com/kelreel/sonichash/internal/cache"
	"github.com/kelreel/sonichash/internal/chain"
	"github.com/kelreel/sonichash/internal/chat"
	"github.com/kelreel/sonichash/internal/config"
	clierr "github.com/kelreel/sonichash/internal/errors"
	"github.com/kelreel/sonichash/internal/execution"
	"github.com/kelreel/sonichash/internal/httpx"
	"github.com/kelreel/sonichash/internal/llm"
	"github.com/kelreel/sonichash/internal/model"
	"github.com/kelreel/sonichash/internal/persona"
	"github.com/kelreel/sonichash/internal/portfolio"
	"github.com/kelreel/sonichash/internal/prices"
	"github.com/kelreel/sonichash/internal/prompt"
	"github.com/kelreel/sonichash/internal/providers/allora"
	"github.com/kelreel/sonichash/internal/providers/coingecko"
)

// services holds the process-wide collaborators. The plan store is opened on
// demand because most commands never record plans.
type services struct {
	settings config.Settings
	log      zerolog.Logger

	cache     *cache.Store
	chain     *chain.Reader
	llm       *llm.Client
	allora    *allora.Client
	prices    *prices.Client
	portfolio *portfolio.Reader
	personas  *persona.FileStore
	detector  *actions.Detector
	builder   *prompt.Builder

	plans    *execution.Store
	executor *actions.Executor
	chat     *chat.Orchestrator

	providerInfos []model.ProviderInfo
}

func newServices(settings config.Settings, logger zerolog.Logger) *services {
	httpClient := httpx.New(settings.Timeout, settings.Retries).WithLogger(logger)
	store := cache.New()
	gecko := coingecko.New(httpClient, settings.CoinGeckoBaseURL, settings.CoinGeckoAPIKey)
	predictor := allora.New(httpClient, settings.AlloraBaseURL, settings.AlloraNetwork, settings.AlloraAPIKey)
	completer := llm.New(httpClient, settings.LLMBaseURL, settings.LLMAPIKey, settings.LLMModel)
	reader := chain.NewReader(settings.RPCURL)

	oracle := prices.New(gecko, store, settings.PriceTTL, logger)
	wallets := portfolio.New(reader, oracle, store, settings.WalletTTL, logger)

	return &services{
		settings:  settings,
		log:       logger,
		cache:     store,
		chain:     reader,
		llm:       completer,
		allora:    predictor,
		prices:    oracle,
		portfolio: wallets,
		personas:  persona.NewFileStore(settings.PersonaDir),
		detector:  actions.NewDetector(completer, settings.LLMDetectorModel, settings.EnableActions, logger),
		builder:   prompt.NewBuilder(wallets, oracle, nil, logger),
		providerInfos: []model.ProviderInfo{
			completer.Info(),
			gecko.Info(),
			predictor.Info(),
			{
				Name:         "sonic-rpc",
				Type:         "chain",
				RequiresKey:  false,
				Capabilities: []string{"wallet.balances", "token.metadata"},
			},
		},
	}
}

// planStore opens the plan log once per process.
func (s *services) planStore() (*execution.Store, error) {
	if s.plans != nil {
		return s.plans, nil
	}
	store, err := execution.OpenStore(s.settings.ActionStorePath, s.settings.ActionLockPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open action plan store", err)
	}
	s.plans = store
	return store, nil
}

// orchestrator builds the executor and chat orchestrator. When the plan
// store cannot be opened, plans are still built and returned but not
// recorded.
func (s *services) orchestrator() *chat.Orchestrator {
	if s.chat != nil {
		return s.chat
	}
	deps := actions.Dependencies{
		Predictor: s.allora,
		Prices:    s.prices,
		Portfolio: s.portfolio,
		Tokens:    s.chain,
		Cache:     s.cache,
	}
	if plans, err := s.planStore(); err != nil {
		s.log.Warn().Err(err).Msg("action plans will not be recorded")
	} else {
		deps.Plans = plans
	}
	s.executor = actions.NewExecutor(deps, actions.ExecutorConfig{
		ChainID:       s.settings.ChainID,
		SwapRouter:    s.settings.SwapRouter,
		SlippageBps:   &s.settings.SwapSlippageBP,
		PredictionTTL: s.settings.PredictionTTL,
	}, s.log)
	s.chat = chat.New(s.detector, s.executor, s.builder, s.llm, chat.Config{
		Model:       s.settings.LLMModel,
		TurnTimeout: s.settings.TurnTimeout,
	}, s.log)
	return s.chat
}

func (s *services) Close() {
	s.chain.Close()
	if s.plans != nil {
		_ = s.plans.Close()
	}
}
