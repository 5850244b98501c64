package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/swapsettle/pkg/api"
	"github.com/uhyunpark/swapsettle/pkg/crypto"
	"github.com/uhyunpark/swapsettle/pkg/htlc"
	"github.com/uhyunpark/swapsettle/pkg/order"
	"github.com/uhyunpark/swapsettle/pkg/settlement"
)

func main() {
	keyHex := flag.String("key", "", "maker private key hex (generated when empty)")
	makerAmt := flag.Uint64("maker-amount", 100, "maker units offered")
	takerAmt := flag.Uint64("taker-amount", 250, "taker units requested")
	minFill := flag.Uint64("min-fill", 10, "minimum fill in maker units")
	ttl := flag.Duration("ttl", time.Hour, "order lifetime")
	receiverHex := flag.String("receiver", "", "HTLC receiver key hash (hex); enables lock output")
	timelock := flag.Uint64("timelock", 0, "HTLC refund slot (default order expiry)")
	refStr := flag.String("ref", "", "funding output txhash#index; signs a refund witness for it")
	flag.Parse()

	// Step 1: Generate or load key
	var (
		signer *crypto.Signer
		err    error
	)
	if *keyHex == "" {
		fmt.Println("Generating new keypair...")
		signer, err = crypto.GenerateKey()
	} else {
		signer, err = crypto.FromPrivateKeyHex(*keyHex)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Address: %s\n", signer.Address().Hex())
	if *keyHex == "" {
		fmt.Printf("Private Key: %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
	}
	fmt.Println()

	// Step 2: Create order
	o, err := order.NewOrder(order.Params{
		Maker:         signer.KeyHash(),
		MakerAmount:   *makerAmt,
		TakerAmount:   *takerAmt,
		MinFillAmount: *minFill,
		Expiry:        time.Now().Add(*ttl).Unix(),
	})
	if err != nil {
		fmt.Printf("Error creating order: %v\n", err)
		os.Exit(1)
	}
	h := o.Hash()

	fmt.Println("Order Details:")
	fmt.Printf("  Order ID: %s\n", hexutil.Encode(o.OrderID))
	fmt.Printf("  Maker Amount: %d\n", o.MakerAmount)
	fmt.Printf("  Taker Amount: %d\n", o.TakerAmount)
	fmt.Printf("  Rate: %s\n", o.Rate().String())
	fmt.Printf("  Min Fill: %d\n", o.MinFillAmount)
	fmt.Printf("  Expiry: %d\n", o.Expiry)
	fmt.Printf("  Hash: %s\n\n", h)

	// Step 3: Sign order hash together with amounts and expiry
	msg := settlement.MakerMessage(o)
	sig, err := signer.SignMessage(msg)
	if err != nil {
		fmt.Printf("Error signing: %v\n", err)
		os.Exit(1)
	}
	if !crypto.VerifySignature(signer.Address(), crypto.MessageHash(msg), sig) {
		fmt.Println("✗ Signature INVALID")
		os.Exit(1)
	}
	fmt.Println("✓ Signature VALID")

	raw, err := json.Marshal(o)
	if err != nil {
		fmt.Printf("Error marshaling JSON: %v\n", err)
		os.Exit(1)
	}
	body, _ := json.MarshalIndent(api.SubmitOrderRequest{Order: raw, MakerSig: hexutil.Encode(sig)}, "", "  ")

	fmt.Println("To submit this order:")
	fmt.Println("  POST http://localhost:8080/api/v1/orders")
	fmt.Println("  Content-Type: application/json")
	fmt.Println("  Body:")
	fmt.Println(string(body))
	fmt.Println()

	if *receiverHex == "" {
		return
	}

	// Step 4: HTLC lock parameters for the maker's side of the swap
	receiver, err := order.DecodeField("receiver", *receiverHex, true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	secret, err := htlc.NewSecret()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	tl := *timelock
	if tl == 0 {
		tl = uint64(o.Expiry)
	}
	datum, err := htlc.EncodeDatum(htlc.NewDatum(secret, receiver, tl, false))
	if err != nil {
		fmt.Printf("Error encoding datum: %v\n", err)
		os.Exit(1)
	}
	redeemer, _ := htlc.EncodeRedeemer(htlc.Redeemer{})

	fmt.Println("HTLC Lock:")
	fmt.Printf("  Secret: %s (KEEP SECRET until claim)\n", hexutil.Encode(secret))
	fmt.Printf("  Hash Lock: %s\n", htlc.HashSecret(secret))
	fmt.Printf("  Timelock: %d\n", tl)
	fmt.Printf("  Datum: %s\n", hexutil.Encode(datum))
	fmt.Printf("  Refund Redeemer: %s\n", hexutil.Encode(redeemer))

	if *refStr == "" {
		return
	}
	// witnesses are bound to the funding output
	ref, err := settlement.ParseOutRef(*refStr)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	refundSig, err := signer.SignMessage(settlement.SpendMessage(ref, htlc.Redeemer{}))
	if err != nil {
		fmt.Printf("Error signing: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  Refund Witness (%s): %s\n", ref, hexutil.Encode(refundSig))
}
