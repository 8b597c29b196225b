// sign-request builds and signs vault API requests for nodes running with
// REQUIRE_SIGNATURES=true. Prints the JSON body to POST.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/uhyunpark/synthvault/pkg/api"
	"github.com/uhyunpark/synthvault/pkg/crypto"
)

func main() {
	var (
		keyHex   = flag.String("key", "", "private key hex; generates a fresh key when empty")
		op       = flag.String("op", "deposit", "operation: deposit | withdraw | open | update | cancel")
		amount   = flag.String("amount", "0", "collateral amount (decimal string)")
		isLong   = flag.Bool("long", true, "open: position direction")
		leverage = flag.Uint("leverage", 1, "open/update: integer leverage in [1,10)")
		id       = flag.Uint64("id", 0, "update/cancel: position id")
		nonce    = flag.Uint64("nonce", 0, "replay-protection nonce")
	)
	flag.Parse()

	var signer *crypto.Signer
	var err error
	if *keyHex == "" {
		signer, err = crypto.GenerateKey()
	} else {
		signer, err = crypto.FromPrivateKeyHex(*keyHex)
	}
	if err != nil {
		fatal("key: %v", err)
	}
	if *keyHex == "" {
		fmt.Fprintln(os.Stderr, "generated a fresh key; address:", signer.Address().Hex())
	}

	addr := signer.Address()
	lev := uint8(*leverage)

	var fields []string
	var body interface{}
	var route string

	switch *op {
	case "deposit", "withdraw":
		fields = []string{*amount}
		route = "/api/v1/" + *op
	case "open":
		fields = []string{*amount, strconv.FormatBool(*isLong), strconv.Itoa(int(lev))}
		route = "/api/v1/positions"
	case "update":
		fields = []string{strconv.FormatUint(*id, 10), strconv.Itoa(int(lev))}
		route = "/api/v1/positions/update"
	case "cancel":
		fields = []string{strconv.FormatUint(*id, 10)}
		route = "/api/v1/positions/cancel"
	default:
		fatal("unknown op: %s", *op)
	}

	sig, err := signer.SignRequest(*op, addr, *nonce, fields...)
	if err != nil {
		fatal("sign: %v", err)
	}
	sigHex := fmt.Sprintf("0x%x", sig)

	switch *op {
	case "deposit":
		body = api.DepositRequest{Address: addr.Hex(), Amount: *amount, Nonce: *nonce, Signature: sigHex}
	case "withdraw":
		body = api.WithdrawRequest{Address: addr.Hex(), Amount: *amount, Nonce: *nonce, Signature: sigHex}
	case "open":
		body = api.OpenPositionRequest{Address: addr.Hex(), Amount: *amount, IsLong: *isLong, Leverage: lev, Nonce: *nonce, Signature: sigHex}
	case "update":
		body = api.UpdatePositionRequest{Address: addr.Hex(), PositionID: *id, Leverage: lev, Nonce: *nonce, Signature: sigHex}
	case "cancel":
		body = api.CancelPositionRequest{Address: addr.Hex(), PositionID: *id, Nonce: *nonce, Signature: sigHex}
	}

	out, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		fatal("marshal: %v", err)
	}

	fmt.Fprintf(os.Stderr, "POST %s\n", route)
	fmt.Println(string(out))
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
