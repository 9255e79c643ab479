package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/user/mafia-suspicion/internal/types"
	"go.uber.org/zap"
)

var (
	errNoGame   = errors.New("you are not in any game. Join one from a group with /mafia join")
	errBadIndex = errors.New("pick a player number from the roster")
	errUsage    = errors.New("missing arguments")
)

// inbound is a chat message already stripped of the command prefix
type inbound struct {
	ChatID  string
	IsGroup bool
	Sender  types.Identity
	Text    string
}

// reply is the response to an inbound command. Private replies go to the
// sender instead of the chat the command came from.
type reply struct {
	Text    string
	Private bool
}

func public(text string) reply  { return reply{Text: text} }
func private(text string) reply { return reply{Text: text, Private: true} }

// processGameCommand handles one game command from a player
func (cm *ClientManager) processGameCommand(ctx context.Context, in inbound) reply {
	fields := strings.Fields(cleanCommand(in.Text))
	if len(fields) == 0 {
		return reply{}
	}

	cm.logger.Debug("Processing command",
		zap.String("chat", in.ChatID),
		zap.String("sender", in.Sender.ID),
		zap.Strings("fields", fields))

	switch fields[0] {
	case "mafia":
		return cm.handleMafiaCommand(ctx, in, fields[1:])
	case "help":
		return public(cm.formatter.FormatHelp(cm.config.WhatsApp.CommandPrefix))
	case "as":
		return cm.handleBotCommand(ctx, in, fields[1:])
	case "kill", "save", "investigate", "accuse", "defend", "skip", "vote":
		sessionID, err := cm.resolveSession(in)
		if err != nil {
			return cm.errorReply(err, true)
		}
		return cm.handleActionCommand(ctx, sessionID, in.Sender.ID, "", fields)
	default:
		return public(fmt.Sprintf("Unknown command. Type %smafia help", cm.config.WhatsApp.CommandPrefix))
	}
}

// handleMafiaCommand covers the lobby and host commands
func (cm *ClientManager) handleMafiaCommand(ctx context.Context, in inbound, args []string) reply {
	sub := "help"
	if len(args) > 0 {
		sub = args[0]
	}

	if sub == "help" {
		return public(cm.formatter.FormatHelp(cm.config.WhatsApp.CommandPrefix))
	}
	if sub == "create" {
		if !in.IsGroup {
			return public("Games can only be created in a group chat.")
		}
		if _, err := cm.gameManager.CreateLobby(ctx, in.ChatID, in.Sender); err != nil {
			return cm.errorReply(err, false)
		}
		return public(fmt.Sprintf("Lobby created by %s. Type %smafia join to play!",
			senderName(in.Sender), cm.config.WhatsApp.CommandPrefix))
	}

	sessionID, err := cm.resolveSession(in)
	if err != nil {
		return cm.errorReply(err, !in.IsGroup)
	}

	var cmd types.Command
	switch sub {
	case "join":
		cmd = types.JoinCommand{Player: in.Sender}
	case "leave":
		cmd = types.LeaveCommand{PlayerID: in.Sender.ID}
	case "start":
		cmd = types.StartCommand{RequesterID: in.Sender.ID}
	case "endphase":
		cmd = types.AdvanceCommand{RequesterID: in.Sender.ID}
	case "end":
		if err := cm.gameManager.EndGame(ctx, sessionID, in.Sender.ID); err != nil {
			return cm.errorReply(err, false)
		}
		return public("The game was ended by the host.")
	case "bots":
		cmd, err = parseBotsCommand(in.Sender.ID, args[1:])
		if err != nil {
			return cm.errorReply(err, false)
		}
	case "status":
		snap, err := cm.gameManager.Snapshot(sessionID)
		if err != nil {
			return cm.errorReply(err, false)
		}
		return reply{Text: cm.formatter.FormatSnapshot(snap), Private: !in.IsGroup}
	case "sus":
		view, err := cm.gameManager.Suspicion(sessionID, in.Sender.ID)
		if err != nil {
			return cm.errorReply(err, true)
		}
		return private(cm.formatter.FormatSuspicion(view))
	default:
		return public(fmt.Sprintf("Unknown command. Type %smafia help", cm.config.WhatsApp.CommandPrefix))
	}

	res, err := cm.gameManager.Dispatch(ctx, sessionID, cmd)
	if err != nil {
		return cm.errorReply(err, false)
	}
	return public(res.Message)
}

func parseBotsCommand(requesterID string, args []string) (types.Command, error) {
	if len(args) == 0 {
		return nil, errUsage
	}
	count, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, fmt.Errorf("invalid bot count %q", args[0])
	}
	mode := types.BotModeAuto
	if len(args) > 1 {
		mode = types.BotMode(args[1])
	}
	return types.AddBotsCommand{RequesterID: requesterID, Count: count, Mode: mode}, nil
}

// handleBotCommand lets the host drive a manual bot: "as <n> <action...>"
func (cm *ClientManager) handleBotCommand(ctx context.Context, in inbound, args []string) reply {
	if len(args) < 2 {
		return cm.errorReply(errUsage, true)
	}
	sessionID, err := cm.resolveSession(in)
	if err != nil {
		return cm.errorReply(err, true)
	}
	botID, err := cm.playerAt(sessionID, args[0])
	if err != nil {
		return cm.errorReply(err, true)
	}
	return cm.handleActionCommand(ctx, sessionID, botID, in.Sender.ID, args[1:])
}

// handleActionCommand converts night, discussion and vote commands. Night
// actions are answered privately.
func (cm *ClientManager) handleActionCommand(ctx context.Context, sessionID, actorID, issuerID string, fields []string) reply {
	verb := fields[0]
	args := fields[1:]

	var (
		cmd       types.Command
		isPrivate bool
	)
	switch verb {
	case "kill", "save", "investigate":
		isPrivate = true
		if len(args) == 0 {
			return cm.errorReply(errUsage, true)
		}
		target, err := cm.playerAt(sessionID, args[0])
		if err != nil {
			return cm.errorReply(err, true)
		}
		cmd = types.NightActionCommand{ActorID: actorID, IssuerID: issuerID, TargetID: target}
	case "accuse", "defend":
		if len(args) == 0 {
			return cm.errorReply(errUsage, false)
		}
		target, err := cm.playerAt(sessionID, args[0])
		if err != nil {
			return cm.errorReply(err, false)
		}
		cmd = types.DiscussionCommand{ActorID: actorID, IssuerID: issuerID, Kind: types.ActionKind(verb), TargetID: target}
	case "skip":
		cmd = types.DiscussionCommand{ActorID: actorID, IssuerID: issuerID, Kind: types.ActionSkip}
	case "vote":
		if len(args) == 0 {
			return cm.errorReply(errUsage, false)
		}
		vote := types.Skip()
		if args[0] != "skip" {
			target, err := cm.playerAt(sessionID, args[0])
			if err != nil {
				return cm.errorReply(err, false)
			}
			vote = types.Cast(target)
		}
		cmd = types.VoteCommand{ActorID: actorID, IssuerID: issuerID, Vote: vote}
	default:
		return public(fmt.Sprintf("Unknown command. Type %smafia help", cm.config.WhatsApp.CommandPrefix))
	}

	res, err := cm.gameManager.Dispatch(ctx, sessionID, cmd)
	if err != nil {
		return cm.errorReply(err, isPrivate)
	}
	return reply{Text: res.Message, Private: isPrivate}
}

// resolveSession binds group messages to their chat and private messages to
// the sender's current game
func (cm *ClientManager) resolveSession(in inbound) (string, error) {
	if in.IsGroup {
		return in.ChatID, nil
	}
	sessionID, ok := cm.gameManager.SessionForPlayer(in.Sender.ID)
	if !ok {
		return "", errNoGame
	}
	return sessionID, nil
}

// playerAt resolves a 1-based roster index
func (cm *ClientManager) playerAt(sessionID, arg string) (string, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return "", errBadIndex
	}
	snap, err := cm.gameManager.Snapshot(sessionID)
	if err != nil {
		return "", err
	}
	if n < 1 || n > len(snap.Roster) {
		return "", errBadIndex
	}
	return snap.Roster[n-1].ID, nil
}

func (cm *ClientManager) errorReply(err error, isPrivate bool) reply {
	return reply{Text: "⚠️ " + capitalize(err.Error()), Private: isPrivate}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func senderName(id types.Identity) string {
	if id.Name != "" {
		return id.Name
	}
	return id.ID
}

// cleanCommand normalizes a command string
func cleanCommand(command string) string {
	return strings.ToLower(strings.TrimSpace(command))
}
