package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/wricardo/mindmeld/api"
	"github.com/wricardo/mindmeld/game/engine"
	ws "github.com/wricardo/mindmeld/transport/websocket"
)

var ErrGameClosed = errors.New("game closed before finishing")

// Bot plays one seat of a game over WebSocket.
type Bot struct {
	Name   string
	Answer string
	// Seats is how many players must have joined before the bot signals
	// ready, so the round does not start without the others.
	Seats int

	conn *websocket.Conn
	log  logrus.FieldLogger
}

// Dial connects a bot to the join endpoint of the server at baseURL.
func Dial(ctx context.Context, baseURL, name, answer string, log logrus.FieldLogger) (*Bot, error) {
	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/api/games/join"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Bot{
		Name:   name,
		Answer: answer,
		conn:   conn,
		log:    log.WithField("bot", name),
	}, nil
}

// Close drops the connection.
func (b *Bot) Close() error {
	return b.conn.Close()
}

// Play joins the game with code and answers every phase until it finishes.
// It returns the final game state.
func (b *Bot) Play(ctx context.Context, code int) (engine.State, error) {
	stop := context.AfterFunc(ctx, func() { b.conn.Close() })
	defer stop()

	if err := b.send(map[string]interface{}{"type": ws.TypeJoin, "code": code, "player": b.Name}); err != nil {
		return engine.State{}, err
	}

	readied := false
	ready := func(players int) error {
		if readied || players < b.Seats {
			return nil
		}
		readied = true
		return b.send(map[string]interface{}{"type": ws.TypeReady})
	}

	for {
		var msg ws.ServerMessage
		if err := b.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return engine.State{}, ctx.Err()
			}
			return engine.State{}, fmt.Errorf("read: %w", err)
		}

		switch msg.Type {
		case ws.TypeError:
			return engine.State{}, fmt.Errorf("server rejected %s: %s (%s)", b.Name, msg.Error.Message, msg.Error.Code)

		case ws.TypeSessionClosed:
			return engine.State{}, ErrGameClosed

		case ws.TypeJoined:
			b.log.WithField("players", msg.Game.PlayersNum).Debug("Joined")
			if err := ready(msg.Game.PlayersNum); err != nil {
				return engine.State{}, err
			}

		case ws.TypePlayerJoined:
			if err := ready(msg.Game.PlayersNum); err != nil {
				return engine.State{}, err
			}

		case ws.TypePhaseChanged:
			state := *msg.Game
			b.log.WithField("phase", state.Phase).Debug("Phase changed")
			switch state.Phase.Kind {
			case engine.Guessing:
				err := b.send(map[string]interface{}{"type": ws.TypeSubmitAnswer, "text": b.Answer})
				if err != nil {
					return engine.State{}, err
				}
			case engine.Answers:
				if err := b.send(map[string]interface{}{"type": ws.TypeAck}); err != nil {
					return engine.State{}, err
				}
			case engine.Finished:
				return state, nil
			}
		}
	}
}

func (b *Bot) send(msg map[string]interface{}) error {
	b.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := b.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send %v: %w", msg["type"], err)
	}
	return nil
}

// CreateGame asks the REST API for a new game.
func CreateGame(ctx context.Context, client *http.Client, baseURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/games/create", bytes.NewReader(nil))
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("create game: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("create game failed: %s - %s", resp.Status, string(body))
	}

	var created api.CreateResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return 0, fmt.Errorf("parse create response: %w", err)
	}
	return created.Code, nil
}
