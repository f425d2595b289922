package dispatch

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowtalk/flowtalk/internal/credential"
	"github.com/flowtalk/flowtalk/internal/protocol"
	"github.com/flowtalk/flowtalk/internal/storage"
)

// idAttempts bounds the regenerate-and-retry loop on identifier collisions.
// Collisions in the 63-bit space are vanishingly rare; the bound only keeps
// a misbehaving backend from looping forever.
const idAttempts = 5

// Service routes validated request envelopes to their handlers. It holds no
// per-request state and is safe to invoke concurrently.
type Service struct {
	repo   storage.Repository
	logger *slog.Logger
}

// NewService builds a dispatch service on top of the given repository.
func NewService(repo storage.Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Serve handles one raw JSON request to completion and always returns a
// response value, never an error: validation failures, unsupported methods
// and storage failures are all normalized into envelopes.
func (s *Service) Serve(ctx context.Context, raw []byte) protocol.Response {
	logger := s.logger.With(slog.String("request_id", uuid.NewString()))

	req, err := protocol.Parse(raw)
	if err != nil {
		logger.Warn("request rejected", slog.Any("error", err))
		return protocol.ValidationFailure()
	}

	logger = logger.With(slog.String("type", req.Type))

	switch req.Type {
	case protocol.TypeRegisterUser:
		return s.registerUser(ctx, logger, req.RegisterUser)
	case protocol.TypeAllFlow:
		return s.allFlow(ctx, logger)
	case protocol.TypeAddFlow:
		return s.addFlow(ctx, logger, req.AddFlow)
	case protocol.TypeGetUpdate, protocol.TypeSendMessage, protocol.TypeAllMessage,
		protocol.TypeUserInfo, protocol.TypeAuthentication, protocol.TypeDeleteUser,
		protocol.TypeDeleteMessage, protocol.TypeEditedMessage, protocol.TypePingPong:
		// Reserved method names without server behavior yet.
		return protocol.Unsupported(req.Type)
	default:
		logger.Warn("unknown request type")
		return protocol.Unsupported(req.Type)
	}
}

// registerUser implements the three-outcome registration contract: an
// existing user with a matching password answers "true", a mismatch answers
// "false" and an unknown login is created and answers "newreg". Passwords
// are stored and compared only through the credential digest.
func (s *Service) registerUser(ctx context.Context, logger *slog.Logger, data *protocol.RegisterUserData) protocol.Response {
	for attempt := 0; attempt < idAttempts; attempt++ {
		user, err := s.repo.FindUserByUsername(ctx, data.Login)
		switch {
		case err == nil:
			if credential.CheckPassword(user.Hash, []byte(data.Password), user.Salt, user.Key) {
				return protocol.RegisterResult{Mode: "reg", Status: "true"}
			}
			return protocol.RegisterResult{Mode: "reg", Status: "false"}
		case errors.Is(err, storage.ErrNotFound):
			// fall through to creation
		default:
			logger.Error("user lookup failed", slog.Any("error", err))
			return protocol.Failure(protocol.TypeRegisterUser, 500, "server could not serve the request")
		}

		cred, err := credential.HashPassword([]byte(data.Password), nil, nil)
		if err != nil {
			logger.Error("password hashing failed", slog.Any("error", err))
			return protocol.Failure(protocol.TypeRegisterUser, 500, "server could not serve the request")
		}

		id, err := randomID()
		if err != nil {
			logger.Error("id generation failed", slog.Any("error", err))
			return protocol.Failure(protocol.TypeRegisterUser, 500, "server could not serve the request")
		}

		err = s.repo.CreateUser(ctx, storage.User{
			UUID:     id,
			Username: data.Login,
			Login:    data.Login,
			Hash:     cred.Hash,
			Salt:     cred.Salt,
			Key:      cred.Key,
		})
		switch {
		case err == nil:
			logger.Info("user registered", slog.Uint64("uuid", id))
			return protocol.RegisterResult{Mode: "reg", Status: "newreg"}
		case errors.Is(err, storage.ErrDuplicateID):
			continue
		case errors.Is(err, storage.ErrDuplicateUsername):
			// Lost a race with a concurrent registration; re-read and compare.
			continue
		default:
			logger.Error("user create failed", slog.Any("error", err))
			return protocol.Failure(protocol.TypeRegisterUser, 500, "server could not serve the request")
		}
	}

	logger.Error("user registration exhausted id attempts")
	return protocol.Failure(protocol.TypeRegisterUser, 500, "server could not serve the request")
}

func (s *Service) allFlow(ctx context.Context, logger *slog.Logger) protocol.Response {
	flows, err := s.repo.ListFlows(ctx)
	if err != nil {
		logger.Error("flow listing failed", slog.Any("error", err))
		return protocol.Failure(protocol.TypeAllFlow, 500, "server could not serve the request")
	}

	records := make([]protocol.FlowRecord, 0, len(flows))
	for _, flow := range flows {
		records = append(records, protocol.FlowRecord{
			FlowID:      flow.FlowID,
			TimeCreated: flow.TimeCreated,
			FlowType:    flow.FlowType,
			Title:       flow.Title,
			Info:        flow.Info,
		})
	}

	return protocol.Success(protocol.TypeAllFlow, &protocol.EnvelopeData{
		Time:  protocol.UnixNow(),
		Flows: records,
	})
}

func (s *Service) addFlow(ctx context.Context, logger *slog.Logger, data *protocol.AddFlowData) protocol.Response {
	for attempt := 0; attempt < idAttempts; attempt++ {
		id, err := randomID()
		if err != nil {
			logger.Error("id generation failed", slog.Any("error", err))
			return protocol.Failure(protocol.TypeAddFlow, 500, "server could not serve the request")
		}

		err = s.repo.CreateFlow(ctx, storage.Flow{
			FlowID:      id,
			TimeCreated: time.Now().Unix(),
			FlowType:    data.FlowType,
			Title:       data.Title,
			Info:        data.Info,
		})
		switch {
		case err == nil:
			logger.Info("flow created", slog.Uint64("flow_id", id), slog.String("title", data.Title))
			return protocol.Success(protocol.TypeAddFlow, &protocol.EnvelopeData{Time: protocol.UnixNow()})
		case errors.Is(err, storage.ErrDuplicateID):
			continue
		default:
			logger.Error("flow create failed", slog.Any("error", err))
			return protocol.Failure(protocol.TypeAddFlow, 500, "server could not serve the request")
		}
	}

	logger.Error("flow creation exhausted id attempts")
	return protocol.Failure(protocol.TypeAddFlow, 500, "server could not serve the request")
}

// SaveMessage persists a message posted by username into the default flow.
// The author must already be registered.
func (s *Service) SaveMessage(ctx context.Context, username, text string, timestamp int64) error {
	user, err := s.repo.FindUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("resolve author %q: %w", username, err)
	}
	return s.repo.CreateMessage(ctx, storage.Message{
		Text:      text,
		UserUUID:  user.UUID,
		FlowID:    0,
		Timestamp: timestamp,
	})
}

// Messages returns every stored message projected with its author's
// username, oldest first.
func (s *Service) Messages(ctx context.Context) ([]protocol.MessageRecord, error) {
	messages, err := s.repo.ListMessages(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]protocol.MessageRecord, 0, len(messages))
	for _, msg := range messages {
		user, err := s.repo.FindUserByUUID(ctx, msg.UserUUID)
		if err != nil {
			return nil, fmt.Errorf("resolve author of message at %d: %w", msg.Timestamp, err)
		}
		records = append(records, protocol.MessageRecord{
			Mode:      "message",
			Username:  user.Username,
			Text:      msg.Text,
			Timestamp: msg.Timestamp,
		})
	}
	return records, nil
}

// randomID draws a fresh identifier from the OS CSPRNG. The top bit is
// cleared so identifiers fit the BIGINT columns of the Postgres backend.
func randomID() (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]) >> 1, nil
}
