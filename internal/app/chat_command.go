package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kelreel/sonichash/internal/chat"
	clierr "github.com/kelreel/sonichash/internal/errors"
	"github.com/kelreel/sonichash/internal/llm"
	"github.com/kelreel/sonichash/internal/model"
	"github.com/kelreel/sonichash/internal/persona"
	"github.com/kelreel/sonichash/internal/registry"
)

func (s *runtimeState) newChatCommand() *cobra.Command {
	var (
		historyFile string
		images      []string
		userID      string
		wallet      string
		chainID     int64
	)
	cmd := &cobra.Command{
		Use:   "chat <persona-id> <message...>",
		Short: "Run one chat turn against a persona",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args[1:], " "))
			if text == "" {
				return clierr.New(clierr.CodeUsage, "message is required")
			}
			history, err := readHistory(historyFile)
			if err != nil {
				return err
			}
			if err := chat.ValidateHistory(history); err != nil {
				return err
			}
			caller, err := buildCaller(userID, wallet, chainID)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), s.settings.TurnTimeout)
			defer cancel()

			p, err := s.svc.personas.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if !persona.CanAccess(p, caller) {
				return clierr.New(clierr.CodeAuth, "not authorized to chat with this persona")
			}

			start := time.Now()
			resp, err := s.svc.orchestrator().Respond(ctx, chatRequest(p, text, images, history, caller))
			status := []model.ProviderStatus{model.Observe(s.svc.llm.Info().Name, start, err)}
			if err != nil {
				s.lastProviders = status
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), resp, actionWarnings(resp.Action), status)
		},
	}
	cmd.Flags().StringVar(&historyFile, "history-file", "", "JSON file with previous messages")
	cmd.Flags().StringSliceVar(&images, "image", nil, "Image URL to attach (repeatable)")
	cmd.Flags().StringVar(&userID, "user-id", "", "Caller user id")
	cmd.Flags().StringVar(&wallet, "wallet", "", "Caller wallet address")
	cmd.Flags().Int64Var(&chainID, "chain-id", registry.SonicChainID, "Caller wallet chain id")
	return cmd
}

func readHistory(path string) ([]llm.Message, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "read history file", err)
	}
	var history []llm.Message
	if err := json.Unmarshal(buf, &history); err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "parse history file", err)
	}
	return history, nil
}

func buildCaller(userID, wallet string, chainID int64) (*persona.Caller, error) {
	userID = strings.TrimSpace(userID)
	wallet = strings.TrimSpace(wallet)
	if userID == "" && wallet == "" {
		return nil, nil
	}
	if wallet != "" && !registry.IsAddress(wallet) {
		return nil, clierr.New(clierr.CodeUsage, "invalid --wallet address")
	}
	return &persona.Caller{ID: userID, WalletAddress: wallet, ChainID: chainID}, nil
}

func chatRequest(p *persona.Persona, text string, images []string, history []llm.Message, caller *persona.Caller) chat.Request {
	content := llm.Text(text)
	if len(images) > 0 {
		parts := []llm.Part{llm.TextPart(text)}
		for _, url := range images {
			parts = append(parts, llm.ImagePart(url))
		}
		content = llm.Multipart(parts...)
	}
	return chat.Request{
		Persona: p,
		Message: llm.UserMessage(content),
		History: history,
		Caller:  caller,
	}
}

func actionWarnings(echo *chat.ActionEcho) []string {
	switch {
	case echo == nil:
		return nil
	case !echo.Success:
		return []string{fmt.Sprintf("action %s failed: %s", echo.Type, echo.Error)}
	case len(echo.Transactions) > 0 && echo.PlanID == "":
		return []string{"action plan was not recorded"}
	}
	return nil
}
