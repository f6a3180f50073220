package testutil

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// FakeClassifierEnv marks a test binary re-executed as a fake classifier.
const FakeClassifierEnv = "FLORANET_FAKE_CLASSIFIER"

// RafflesiaResponse is the reply the fake classifier gives for ordinary images.
const RafflesiaResponse = `{"species_name":"Rafflesia arnoldii","confidence":0.42,"topk":[{"name":"Rafflesia arnoldii","confidence":0.42},{"name":"Amorphophallus titanum","confidence":0.31}]}`

// RunFakeClassifierIfRequested turns the current test binary into a fake
// classifier when FakeClassifierEnv is set, and never returns in that case.
// Call it first thing in TestMain.
//
// The reply depends on the requested image path:
//
//	crash        write to stderr and exit 3 without replying
//	hang         never reply
//	garbage      reply with a truncated JSON object
//	chatter      print a non-JSON line, then reply normally
//	nonfinite    reply with NaN and Infinity confidences
//	error        reply with a classifier error
//	notopk       reply without a topk array
//	empty        reply with an empty species name and no candidates
//	echo:<name>  reply with <name> at confidence 0.9
//	slow:<ms>    sleep, then reply normally
//	json:<obj>   reply with <obj> verbatim
func RunFakeClassifierIfRequested() {
	if os.Getenv(FakeClassifierEnv) != "1" {
		return
	}
	if os.Getenv(FakeClassifierEnv+"_EXIT_ON_START") == "1" {
		fmt.Fprintln(os.Stderr, "model file missing")
		os.Exit(2)
	}

	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		var req struct {
			Image string `json:"image"`
			TopK  int    `json:"topk"`
		}
		if err := json.Unmarshal(in.Bytes(), &req); err != nil {
			fmt.Fprintln(os.Stderr, "bad request:", err)
			os.Exit(4)
		}
		reply(req.Image)
	}
	os.Exit(0)
}

func reply(image string) {
	switch {
	case image == "crash":
		fmt.Fprintln(os.Stderr, "Traceback: segmentation fault in model")
		os.Exit(3)
	case image == "hang":
		time.Sleep(time.Hour)
	case image == "garbage":
		fmt.Println(`{"species_name": "Rafflesia`)
	case image == "chatter":
		fmt.Println("loading weights from cache")
		fmt.Println(RafflesiaResponse)
	case image == "nonfinite":
		fmt.Println(`{"species_name":"Nepenthes rajah","confidence":NaN,"topk":[{"name":"Nepenthes rajah","confidence":Infinity},{"name":"Nepenthes NaN","confidence":-Infinity}]}`)
	case image == "error":
		fmt.Println(`{"error":"cannot identify image file"}`)
	case image == "notopk":
		fmt.Println(`{"species_name":"Nepenthes rajah","confidence":1.7}`)
	case image == "empty":
		fmt.Println(`{"species_name":"","confidence":0.5,"topk":[]}`)
	case strings.HasPrefix(image, "echo:"):
		name := strings.TrimPrefix(image, "echo:")
		out, _ := json.Marshal(map[string]any{"species_name": name, "confidence": 0.9})
		fmt.Println(string(out))
	case strings.HasPrefix(image, "slow:"):
		ms, _ := strconv.Atoi(strings.TrimPrefix(image, "slow:"))
		time.Sleep(time.Duration(ms) * time.Millisecond)
		fmt.Println(RafflesiaResponse)
	case strings.HasPrefix(image, "json:"):
		fmt.Println(strings.TrimPrefix(image, "json:"))
	default:
		fmt.Println(RafflesiaResponse)
	}
}

// FakeClassifierCommand returns the command, arguments and environment that
// re-execute the running test binary as a fake classifier.
func FakeClassifierCommand(extraEnv ...string) (command string, args, env []string) {
	return os.Args[0], []string{"-test.run=^$"}, append([]string{FakeClassifierEnv + "=1"}, extraEnv...)
}
