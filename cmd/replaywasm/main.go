//go:build js && wasm

// Command replaywasm exposes the replay engine to a browser viewer.
package main

import (
	"encoding/json"
	"errors"
	"syscall/js"

	"tetris-lite/replay"
)

type runRequest struct {
	Tape  replay.Tape `json:"tape"`
	Trace bool        `json:"trace"`
}

type runResponse struct {
	OK     bool                `json:"ok"`
	Result *replay.Result      `json:"result,omitempty"`
	Frames map[string]string   `json:"frames,omitempty"`
	Error  *replay.ReplayError `json:"error,omitempty"`
}

func main() {
	js.Global().Set("__replayRun", entry(false))
	js.Global().Set("__replayRender", entry(true))
	select {}
}

// entry wraps the replay for JS. With render set, the response also carries
// each final board drawn as text.
func entry(render bool) js.Func {
	return js.FuncOf(func(_ js.Value, args []js.Value) any {
		if len(args) < 1 {
			return encode(failure("invalid_request", "missing request payload"))
		}
		return encode(handleRun(args[0].String(), render))
	})
}

func handleRun(raw string, render bool) runResponse {
	var req runRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return failure("invalid_json", err.Error())
	}

	res, err := replay.Run(req.Tape, replay.Options{Trace: req.Trace})
	resp := runResponse{OK: err == nil, Result: res}
	if err != nil {
		var rerr *replay.ReplayError
		if !errors.As(err, &rerr) {
			return failure("replay_failed", err.Error())
		}
		resp.Error = rerr
	}
	if render && res != nil {
		resp.Frames = make(map[string]string, len(res.Boards))
		for _, b := range res.Boards {
			resp.Frames[b.Board] = b.Render()
		}
	}
	return resp
}

func failure(reason, msg string) runResponse {
	return runResponse{Error: &replay.ReplayError{Step: -1, Reason: reason, Message: msg}}
}

func encode(v runResponse) string {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(failure("marshal_failed", err.Error()))
	}
	return string(b)
}
