package main

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v2"

	"flexigo/gifcodec"
	"flexigo/internal/jobcache"
	"flexigo/lzw"
	"flexigo/zcodec"
)

const (
	wsReadBuffer  = 1024
	wsWriteBuffer = 1024
)

// progressMessage is streamed to the client as each frame finishes its
// DP scoring pass.
type progressMessage struct {
	Frame      int    `json:"frame"`
	NumFrames  int    `json:"numFrames"`
	Percentage int    `json:"percentage"`
	Error      string `json:"error,omitempty"`
	Done       bool   `json:"done,omitempty"`
	Original   int    `json:"originalBytes,omitempty"`
	Optimized  int    `json:"optimizedBytes,omitempty"`
}

// serveCommand runs flexigo as a small HTTP service: a client opens a
// websocket at /ws, sends the file as one binary message and receives
// progress plus the final result over the same connection (/healthz
// answers 200), backed by an in-memory job cache so repeated
// uploads of the same bytes under the same settings skip the DP pass.
func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run flexigo as an HTTP+websocket recompression service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: ":8088", Usage: "listen address"},
			&cli.IntFlag{Name: "cache-entries", Value: 64, Usage: "number of recent jobs to keep cached"},
		},
		Action: func(c *cli.Context) error {
			cache, err := jobcache.New(c.Int("cache-entries"))
			if err != nil {
				return err
			}
			srv := &server{cache: cache}

			mux := http.NewServeMux()
			mux.HandleFunc("/ws", srv.handleWS)
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			log.Printf("flexigo serve: listening on %s", c.String("addr"))
			return http.ListenAndServe(c.String("addr"), mux)
		},
	}
}

type server struct {
	cache *jobcache.Cache
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsReadBuffer,
	WriteBufferSize: wsWriteBuffer,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWS accepts one binary message holding the raw input file,
// recompresses it with the default "prettygood" settings, and streams a
// progressMessage per frame followed by a final message carrying the
// optimized bytes.
func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("flexigo serve: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	msgType, raw, err := conn.ReadMessage()
	if err != nil || msgType != websocket.BinaryMessage {
		s.sendError(conn, "expected a single binary message holding the input file")
		return
	}

	isGif := looksLikeGIF(raw)
	settings := prettyGoodSettings()
	key := jobcache.Key(raw, "prettygood")

	if cached, ok := s.cache.Get(key); ok {
		s.sendDone(conn, len(raw), cached.OptimizedBytes, cached.Output)
		return
	}

	var result []byte
	if isGif {
		result, err = s.recompressGIFStreaming(conn, raw, settings)
	} else {
		result, err = s.recompressZStreaming(conn, raw, settings)
	}
	if err != nil {
		s.sendError(conn, err.Error())
		return
	}

	s.cache.Put(key, jobcache.Result{Output: result, OriginalBytes: len(raw), OptimizedBytes: len(result)})
	s.sendDone(conn, len(raw), len(result), result)
}

func (s *server) recompressGIFStreaming(conn *websocket.Conn, raw []byte, settings lzw.Settings) ([]byte, error) {
	img, err := gifcodec.Decode(bytes.NewReader(raw), nil)
	if err != nil {
		return nil, err
	}

	packed := make([][]byte, len(img.Frames))
	for i, frame := range img.Frames {
		fs := settings
		fs.MinCodeSize = frame.CodeSize

		enc := lzw.NewEncoder(frame.Pixels, true)
		bits, err := enc.Optimize(fs)
		if err != nil {
			return nil, err
		}
		packed[i] = bits

		s.sendJSON(conn, progressMessage{
			Frame:      i + 1,
			NumFrames:  len(img.Frames),
			Percentage: (i + 1) * 100 / len(img.Frames),
		})
	}

	var out bytes.Buffer
	if _, err := img.WriteOptimized(&out, packed, 0); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (s *server) recompressZStreaming(conn *websocket.Conn, raw []byte, settings lzw.Settings) ([]byte, error) {
	f, err := zcodec.Decode(bytes.NewReader(raw), false, nil)
	if err != nil {
		return nil, err
	}

	settings.MinCodeSize = 8
	settings.StartWithClearCode = false
	settings.MaxDict = lzwMaxDictionary

	enc := lzw.NewEncoder(f.Data, false)
	bits, err := enc.Optimize(settings)
	if err != nil {
		return nil, err
	}

	s.sendJSON(conn, progressMessage{Frame: 1, NumFrames: 1, Percentage: 100})

	var out bytes.Buffer
	if _, err := f.WriteOptimized(&out, bits); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (s *server) sendJSON(conn *websocket.Conn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	conn.WriteMessage(websocket.TextMessage, b)
}

func (s *server) sendError(conn *websocket.Conn, msg string) {
	s.sendJSON(conn, progressMessage{Error: msg, Done: true})
}

func (s *server) sendDone(conn *websocket.Conn, original, optimized int, payload []byte) {
	s.sendJSON(conn, progressMessage{Done: true, Original: original, Optimized: optimized})
	conn.WriteMessage(websocket.BinaryMessage, payload)
}

func prettyGoodSettings() lzw.Settings {
	return lzw.Settings{
		Alignment:           defaultAlignment,
		Greedy:              false,
		MinImprovement:      defaultMinImprovement,
		MinNonGreedyMatch:   defaultMinNonGreedy,
		MaxDict:             gifMaxDictionary,
		MaxTokens:           gifMaxTokens,
		AvoidNonGreedyAgain: true,
		SmartGreedy:         true,
		StartWithClearCode:  true,
	}
}

func looksLikeGIF(data []byte) bool {
	return len(data) >= 6 && bytes.HasPrefix(data, []byte("GIF"))
}
