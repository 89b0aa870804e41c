package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	gojwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"mindmap/application/reconcile"
	"mindmap/domain/core/aggregates"
	"mindmap/domain/core/entities"
	"mindmap/domain/core/valueobjects"
	"mindmap/domain/events"
	"mindmap/pkg/auth"
	"mindmap/pkg/client"
)

const MindMapCtlVersion = "0.1.0"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Mind map control.

The default urls are:
    api_url: http://localhost:8080
    ws_url: ws://localhost:8080/ws

Usage:
    mindmapctl token --secret=<secret> --user=<user_id>
        [--name=<name>] [--email=<email>]
        [--issuer=<issuer>] [--audience=<audience>]
    mindmapctl list [--api_url=<api_url>] --token=<token>
    mindmapctl watch [--ws_url=<ws_url>] [--token=<token>]
        [--name=<name>] <room_id>
    mindmapctl add-node [--api_url=<api_url>] [--ws_url=<ws_url>]
        --token=<token> --label=<label> [--x=<x>] [--y=<y>]
    mindmapctl add-edge [--api_url=<api_url>] [--ws_url=<ws_url>]
        --token=<token> [--label=<label>] <source_id> <target_id>

Options:
    -h --help                Show this screen.
    --version                Show version.
    --api_url=<api_url>      REST base url [default: http://localhost:8080].
    --ws_url=<ws_url>        Relay url [default: ws://localhost:8080/ws].
    --token=<token>          Bearer token.
    --secret=<secret>        HS256 signing secret.
    --user=<user_id>         Token subject.
    --name=<name>            Display name.
    --email=<email>          Email claim.
    --issuer=<issuer>        Token issuer [default: mindmap-auth].
    --audience=<audience>    Token audience [default: mindmap-api].
    --label=<label>          Node or edge label.
    --x=<x>                  Node x coordinate [default: 250].
    --y=<y>                  Node y coordinate [default: 150].`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], MindMapCtlVersion)
	if err != nil {
		panic(err)
	}

	if token_, _ := opts.Bool("token"); token_ {
		err = token(opts)
	} else if list_, _ := opts.Bool("list"); list_ {
		err = list(opts)
	} else if watch_, _ := opts.Bool("watch"); watch_ {
		err = watch(opts)
	} else if addNode_, _ := opts.Bool("add-node"); addNode_ {
		err = addNode(opts)
	} else if addEdge_, _ := opts.Bool("add-edge"); addEdge_ {
		err = addEdge(opts)
	}
	if err != nil {
		Err.Fatal(err)
	}
}

// mint a development token
func token(opts docopt.Opts) error {
	secret, _ := opts.String("--secret")
	userID, _ := opts.String("--user")
	name, _ := opts.String("--name")
	email, _ := opts.String("--email")
	issuer, _ := opts.String("--issuer")
	audience, _ := opts.String("--audience")

	gen, err := auth.NewJWTGenerator(auth.JWTGeneratorConfig{
		SigningMethod: "HS256",
		SecretKey:     secret,
		Issuer:        issuer,
		Audience:      []string{audience},
		ExpiryTime:    24 * time.Hour,
	})
	if err != nil {
		return err
	}
	tok, err := gen.GenerateToken(userID, name, email)
	if err != nil {
		return err
	}
	Out.Print(tok)
	return nil
}

func list(opts docopt.Opts) error {
	apiURL, _ := opts.String("--api_url")
	tok, _ := opts.String("--token")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	docs, err := client.NewDocumentClient(client.DocumentClientConfig{BaseURL: apiURL, Token: tok}, nil).List(ctx)
	if err != nil {
		return err
	}
	for _, d := range docs {
		Out.Printf("%s  %-30s  nodes=%d edges=%d  updated=%s",
			d.ID, d.Title, len(d.Nodes), len(d.Edges), d.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

// print every event of a room until interrupted
func watch(opts docopt.Opts) error {
	wsURL, _ := opts.String("--ws_url")
	tok, _ := opts.String("--token")
	name, _ := opts.String("--name")
	roomID, _ := opts.String("<room_id>")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	relay, err := client.DialRelay(ctx, wsURL, tok, nil)
	if err != nil {
		return err
	}
	defer relay.Close()

	var info events.ParticipantInfo
	if name != "" {
		info = events.ParticipantInfo{"name": name}
	}
	if err := relay.JoinRoom(roomID, info); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-relay.Messages():
			if !ok {
				return fmt.Errorf("relay connection closed")
			}
			line, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			Out.Print(string(line))
		}
	}
}

// add a node to the caller's current mind map and relay it to the room
func addNode(opts docopt.Opts) error {
	label, _ := opts.String("--label")
	xStr, _ := opts.String("--x")
	yStr, _ := opts.String("--y")

	x, err := strconv.ParseFloat(xStr, 64)
	if err != nil {
		return fmt.Errorf("invalid --x: %w", err)
	}
	y, err := strconv.ParseFloat(yStr, 64)
	if err != nil {
		return fmt.Errorf("invalid --y: %w", err)
	}
	position, err := valueobjects.NewPosition(x, y)
	if err != nil {
		return err
	}
	node, err := entities.NewNode(label, position)
	if err != nil {
		return err
	}

	docID, err := applyToCurrent(opts, aggregates.AddNode(node))
	if err != nil {
		return err
	}
	Out.Printf("added node %s to %s", node.ID, docID)
	return nil
}

// connect two nodes of the caller's current mind map. Endpoints are not
// checked; an edge to a missing node is kept as is.
func addEdge(opts docopt.Opts) error {
	label, _ := opts.String("--label")
	source, _ := opts.String("<source_id>")
	target, _ := opts.String("<target_id>")

	edge, err := entities.NewEdge(source, target, label)
	if err != nil {
		return err
	}

	docID, err := applyToCurrent(opts, aggregates.AddEdge(edge))
	if err != nil {
		return err
	}
	Out.Printf("added edge %s (%s -> %s) to %s", edge.ID, source, target, docID)
	return nil
}

// applyToCurrent opens a session on the caller's most recent mind map,
// applies m, and writes the working copy back on close
func applyToCurrent(opts docopt.Opts, m aggregates.Mutation) (string, error) {
	apiURL, _ := opts.String("--api_url")
	wsURL, _ := opts.String("--ws_url")
	tok, _ := opts.String("--token")

	identity, err := subject(tok)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := zap.NewNop()
	docs := client.NewDocumentClient(client.DocumentClientConfig{BaseURL: apiURL, Token: tok}, logger)
	engine := reconcile.NewEngine(docs, logger, reconcile.Options{})
	relay, err := client.DialRelay(ctx, wsURL, tok, logger)
	if err != nil {
		return "", err
	}

	session := client.NewSession(engine, relay, logger, client.SessionOptions{
		UserInfo: events.ParticipantInfo{"name": "mindmapctl"},
	})
	doc, err := session.Start(ctx, identity)
	if err != nil {
		relay.Close()
		return "", err
	}
	if err := session.Apply(m); err != nil {
		session.Close(ctx)
		return "", err
	}
	if err := session.Close(ctx); err != nil {
		return "", err
	}
	return doc.ID, nil
}

// subject reads the user id of a token without verifying it; the server
// verifies every request
func subject(tok string) (string, error) {
	var claims auth.Claims
	if _, _, err := gojwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	if claims.UserID == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return claims.UserID, nil
}
