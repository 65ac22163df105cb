// Command citadel-cli is a thin client over citadeld's ZMQ request/reply
// surface, in the same spirit as the teacher's lncli: one subcommand per
// wire request, table-rendered output, hex in only where the wire payload
// is itself raw bytes the caller is expected to pipe elsewhere (PSBTs,
// consignments, genesis blobs).
package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/table"
	"github.com/mycitadel/citadel-runtime/assetclient"
	"github.com/mycitadel/citadel-runtime/model"
	"github.com/mycitadel/citadel-runtime/rpc"
	"github.com/tv42/zbase32"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "citadel-cli"
	app.Usage = "command-line client for citadeld"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "rpcserver", Value: "tcp://127.0.0.1:62020", Usage: "citadeld ZMQ REP endpoint"},
		cli.StringFlag{Name: "macaroonpath", Value: defaultMacaroonPath(), Usage: "path to the admin macaroon"},
	}
	app.Commands = commands()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "citadel-cli: %v\n", err)
		os.Exit(1)
	}
}

func defaultMacaroonPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".citadel/admin.macaroon"
	}
	return home + "/.citadel/admin.macaroon"
}

func client(ctx *cli.Context) (*rpcClient, error) {
	return dialRPC(ctx.GlobalString("rpcserver"), ctx.GlobalString("macaroonpath"))
}

func parseContractID(s string) (model.ContractID, error) {
	return model.ParseContractID(s)
}

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	return t
}

func commands() []cli.Command {
	return []cli.Command{
		createSingleSigCommand,
		listContractsCommand,
		renameContractCommand,
		deleteContractCommand,
		contractOperationsCommand,
		syncContractCommand,
		usedAddressesCommand,
		nextAddressCommand,
		unuseAddressCommand,
		blindUtxoCommand,
		listInvoicesCommand,
		addInvoiceCommand,
		contractUnspentCommand,
		composeBitcoinCommand,
		composeRGBBlindCommand,
		finalizeTransferCommand,
		acceptTransferCommand,
		listIdentitiesCommand,
		addSignerCommand,
		addIdentityCommand,
		importAssetCommand,
		listAssetsCommand,
	}
}

var createSingleSigCommand = cli.Command{
	Name:  "create-singlesig",
	Usage: "create a single-signature contract from an extended public key",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "xpub", Usage: "extended public key"},
		cli.StringFlag{Name: "name", Usage: "human-readable contract name"},
		cli.StringFlag{Name: "chain", Usage: "target chain tag (defaults to citadeld's configured chain)"},
		cli.StringFlag{Name: "category", Value: "current", Usage: "current | instant | saving"},
		cli.BoolFlag{Name: "wildcard", Usage: "terminal step is a wildcard (required for address derivation)"},
		cli.UintFlag{Name: "terminal-index", Usage: "fixed terminal index, when --wildcard is not set"},
	},
	Action: func(ctx *cli.Context) error {
		c, err := client(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		category, err := parsePolicyCategory(ctx.String("category"))
		if err != nil {
			return err
		}
		req := rpc.CreateSingleSigRequest{
			Category:      category,
			XPub:          ctx.String("xpub"),
			Wildcard:      ctx.Bool("wildcard"),
			TerminalIndex: uint32(ctx.Uint("terminal-index")),
			Name:          ctx.String("name"),
			Chain:         ctx.String("chain"),
		}

		var contract model.Contract
		if err := c.call(rpc.ReqCreateSingleSig, req.StrictEncode, contract.StrictDecode); err != nil {
			return err
		}
		fmt.Printf("created contract %s (%s)\n", contract.ID, contract.Name)
		return nil
	},
}

func parsePolicyCategory(s string) (model.PolicyType, error) {
	switch s {
	case "current":
		return model.PolicyCurrent, nil
	case "instant":
		return model.PolicyInstant, nil
	case "saving":
		return model.PolicySaving, nil
	default:
		return 0, fmt.Errorf("unknown category %q (want current|instant|saving)", s)
	}
}

var listContractsCommand = cli.Command{
	Name:  "list-contracts",
	Usage: "list every contract citadeld manages",
	Action: func(ctx *cli.Context) error {
		c, err := client(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		var reply rpc.ContractsReply
		if err := c.call(rpc.ReqListContracts, nil, reply.StrictDecode); err != nil {
			return err
		}

		t := newTable(os.Stdout)
		t.AppendHeader(table.Row{"Contract ID", "Name", "Chain", "Tweaks", "Invoices"})
		for _, contract := range reply.Contracts {
			t.AppendRow(table.Row{
				contract.ID, contract.Name, contract.Chain,
				len(contract.Data.Tweaks), len(contract.Data.Invoices),
			})
		}
		t.Render()
		return nil
	},
}

var renameContractCommand = cli.Command{
	Name:      "rename-contract",
	Usage:     "rename a contract",
	ArgsUsage: "<contract-id> <new-name>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 2 {
			return cli.NewExitError("usage: rename-contract <contract-id> <new-name>", 1)
		}
		id, err := parseContractID(ctx.Args().Get(0))
		if err != nil {
			return err
		}
		c, err := client(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		req := rpc.RenameContractRequest{ContractID: id, Name: ctx.Args().Get(1)}
		if err := c.call(rpc.ReqRenameContract, req.StrictEncode, nil); err != nil {
			return err
		}
		fmt.Println("renamed")
		return nil
	},
}

var deleteContractCommand = cli.Command{
	Name:      "delete-contract",
	Usage:     "delete a contract and its dependent data",
	ArgsUsage: "<contract-id>",
	Action: func(ctx *cli.Context) error {
		return contractIDAction(ctx, rpc.ReqDeleteContract, "deleted")
	},
}

var contractOperationsCommand = cli.Command{
	Name:      "operations",
	Usage:     "list a contract's operation history",
	ArgsUsage: "<contract-id>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.NewExitError("usage: operations <contract-id>", 1)
		}
		id, err := parseContractID(ctx.Args().First())
		if err != nil {
			return err
		}
		c, err := client(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		req := rpc.ContractIDRequest{ContractID: id}
		var reply rpc.OperationsReply
		if err := c.call(rpc.ReqContractOperations, req.StrictEncode, reply.StrictDecode); err != nil {
			return err
		}

		t := newTable(os.Stdout)
		t.AppendHeader(table.Row{"Txid", "Direction", "Timestamp", "Bitcoin value"})
		for _, op := range reply.Operations {
			t.AppendRow(table.Row{
				op.Txid, operationDirectionString(op.Direction), op.Timestamp,
				op.Volumes[model.ContractID{}],
			})
		}
		t.Render()
		return nil
	},
}

func operationDirectionString(d model.OperationDirection) string {
	if d == model.DirectionOutgoing {
		return "outgoing"
	}
	return "incoming"
}

var syncContractCommand = cli.Command{
	Name:      "sync",
	Usage:     "reconcile on-chain UTXOs and RGB allocations for a contract",
	ArgsUsage: "<contract-id>",
	Flags: []cli.Flag{
		cli.UintFlag{Name: "depth", Value: 20, Usage: "derivation-index lookup depth per batch"},
	},
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.NewExitError("usage: sync <contract-id>", 1)
		}
		id, err := parseContractID(ctx.Args().First())
		if err != nil {
			return err
		}
		c, err := client(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		req := rpc.SyncContractRequest{ContractID: id, LookupDepth: uint8(ctx.Uint("depth"))}
		var reply rpc.AssetUtxoMapReply
		if err := c.call(rpc.ReqSyncContract, req.StrictEncode, reply.StrictDecode); err != nil {
			return err
		}
		printAssetUtxoMap(reply.Assets)
		return nil
	},
}

var contractUnspentCommand = cli.Command{
	Name:      "unspent",
	Usage:     "show the cached UTXO set for a contract, by asset",
	ArgsUsage: "<contract-id>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.NewExitError("usage: unspent <contract-id>", 1)
		}
		id, err := parseContractID(ctx.Args().First())
		if err != nil {
			return err
		}
		c, err := client(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		req := rpc.ContractIDRequest{ContractID: id}
		var reply rpc.AssetUtxoMapReply
		if err := c.call(rpc.ReqContractUnspent, req.StrictEncode, reply.StrictDecode); err != nil {
			return err
		}
		printAssetUtxoMap(reply.Assets)
		return nil
	},
}

func printAssetUtxoMap(assets map[model.AssetID][]model.Utxo) {
	t := newTable(os.Stdout)
	t.AppendHeader(table.Row{"Asset", "Txid", "Vout", "Value", "Height", "Derivation"})
	for asset, utxos := range assets {
		label := "bitcoin"
		if !asset.IsZero() {
			label = asset.String()
		}
		for _, u := range utxos {
			t.AppendRow(table.Row{label, u.Txid, u.Vout, u.Value, u.Height, u.DerivationIndex})
		}
	}
	t.Render()
}

var usedAddressesCommand = cli.Command{
	Name:      "used-addresses",
	Usage:     "list addresses marked used for a contract",
	ArgsUsage: "<contract-id>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.NewExitError("usage: used-addresses <contract-id>", 1)
		}
		id, err := parseContractID(ctx.Args().First())
		if err != nil {
			return err
		}
		c, err := client(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		req := rpc.ContractIDRequest{ContractID: id}
		var reply rpc.AddressDerivationsReply
		if err := c.call(rpc.ReqUsedAddresses, req.StrictEncode, reply.StrictDecode); err != nil {
			return err
		}

		t := newTable(os.Stdout)
		t.AppendHeader(table.Row{"Address", "Path"})
		for _, d := range reply.Derivations {
			t.AppendRow(table.Row{d.Address, d.Path})
		}
		t.Render()
		return nil
	},
}

var nextAddressCommand = cli.Command{
	Name:      "next-address",
	Usage:     "derive the next (or a specific) receiving address",
	ArgsUsage: "<contract-id>",
	Flags: []cli.Flag{
		cli.IntFlag{Name: "index", Value: -1, Usage: "specific unhardened index (defaults to the next unused one)"},
		cli.BoolFlag{Name: "legacy", Usage: "derive the legacy (Sh-nested) address form"},
		cli.BoolTFlag{Name: "mark-used", Usage: "mark the derived address used (default true)"},
	},
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.NewExitError("usage: next-address <contract-id>", 1)
		}
		id, err := parseContractID(ctx.Args().First())
		if err != nil {
			return err
		}
		c, err := client(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		req := rpc.NextAddressRequest{
			ContractID: id,
			Legacy:     ctx.Bool("legacy"),
			MarkUsed:   ctx.BoolT("mark-used"),
		}
		if ctx.Int("index") >= 0 {
			idx := model.UnhardenedIndex(ctx.Int("index"))
			req.Index = &idx
		}

		var reply rpc.AddressDerivationReply
		if err := c.call(rpc.ReqNextAddress, req.StrictEncode, reply.StrictDecode); err != nil {
			return err
		}
		fmt.Printf("%s (path %v)\n", reply.Derivation.Address, reply.Derivation.Path)
		return nil
	},
}

var unuseAddressCommand = cli.Command{
	Name:      "unuse-address",
	Usage:     "mark a previously used address forgotten",
	ArgsUsage: "<contract-id> <address>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 2 {
			return cli.NewExitError("usage: unuse-address <contract-id> <address>", 1)
		}
		id, err := parseContractID(ctx.Args().Get(0))
		if err != nil {
			return err
		}
		c, err := client(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		req := rpc.UnuseAddressRequest{ContractID: id, Address: ctx.Args().Get(1)}
		if err := c.call(rpc.ReqUnuseAddress, req.StrictEncode, nil); err != nil {
			return err
		}
		fmt.Println("unused")
		return nil
	},
}

var blindUtxoCommand = cli.Command{
	Name:      "blind-utxo",
	Usage:     "issue a blind-UTXO reveal for receiving a colored-asset transfer",
	ArgsUsage: "<contract-id>",
	Action: func(ctx *cli.Context) error {
		return contractIDReplyAction(ctx, rpc.ReqBlindUtxo, func() (interface{ StrictDecode(io.Reader) error }, func()) {
			var reply rpc.OutpointRevealReply
			return &reply, func() {
				r := reply.Reveal
				fmt.Printf("blind-utxo=%s hash=%x txid=%x vout=%d blinding=%d\n",
					r.String(), r.Hash(), r.Txid, r.Vout, r.Blinding)
			}
		})
	},
}

var listInvoicesCommand = cli.Command{
	Name:      "list-invoices",
	Usage:     "list invoices recorded against a contract",
	ArgsUsage: "<contract-id>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.NewExitError("usage: list-invoices <contract-id>", 1)
		}
		id, err := parseContractID(ctx.Args().First())
		if err != nil {
			return err
		}
		c, err := client(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		req := rpc.ContractIDRequest{ContractID: id}
		var reply rpc.InvoicesReply
		if err := c.call(rpc.ReqListInvoices, req.StrictEncode, reply.StrictDecode); err != nil {
			return err
		}

		t := newTable(os.Stdout)
		t.AppendHeader(table.Row{"Destination", "Amount", "Description", "Timestamp"})
		for _, inv := range reply.Invoices {
			t.AppendRow(table.Row{inv.Destination, inv.Amount, inv.Description, inv.Timestamp})
		}
		t.Render()
		return nil
	},
}

var addInvoiceCommand = cli.Command{
	Name:      "add-invoice",
	Usage:     "record an invoice against a contract",
	ArgsUsage: "<contract-id>",
	Flags: []cli.Flag{
		cli.Uint64Flag{Name: "amount", Usage: "requested amount, in sats or smallest asset unit"},
		cli.StringFlag{Name: "asset-id", Usage: "Bech32m-encoded RGB asset id; omitted for a plain bitcoin invoice"},
		cli.StringFlag{Name: "description", Usage: "human-readable payment description"},
		cli.DurationFlag{Name: "expiry", Usage: "invoice validity window"},
	},
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.NewExitError("usage: add-invoice <contract-id>", 1)
		}
		id, err := parseContractID(ctx.Args().First())
		if err != nil {
			return err
		}

		inv := model.Invoice{
			Destination: id,
			Amount:      ctx.Uint64("amount"),
			Timestamp:   time.Now(),
			Expiry:      ctx.Duration("expiry"),
			Description: ctx.String("description"),
		}
		if assetHex := ctx.String("asset-id"); assetHex != "" {
			assetID, err := parseContractID(assetHex)
			if err != nil {
				return fmt.Errorf("parse asset id: %w", err)
			}
			inv.AssetID = &assetID
		}

		req := rpc.AddInvoiceRequest{ContractID: id, Invoice: inv}
		c, err := client(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.call(rpc.ReqAddInvoice, req.StrictEncode, nil); err != nil {
			return err
		}
		fmt.Println("invoice recorded")
		return nil
	},
}

var composeBitcoinCommand = cli.Command{
	Name:      "compose-bitcoin",
	Usage:     "compose a bitcoin-payment transfer",
	ArgsUsage: "<pay-from-contract-id>",
	Flags: []cli.Flag{
		cli.Uint64Flag{Name: "amount", Usage: "sats to pay the payee"},
		cli.Uint64Flag{Name: "fee", Usage: "bitcoin miner fee, in sats"},
		cli.StringFlag{Name: "payee-descriptor-hex", Usage: "hex-encoded strict-encoded payee ContractDescriptor"},
		cli.UintFlag{Name: "payee-index", Usage: "derivation index the payee descriptor resolves to"},
	},
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.NewExitError("usage: compose-bitcoin <pay-from-contract-id>", 1)
		}
		payFrom, err := parseContractID(ctx.Args().First())
		if err != nil {
			return err
		}
		descriptor, err := decodePayeeDescriptorHex(ctx.String("payee-descriptor-hex"))
		if err != nil {
			return err
		}

		req := rpc.ComposeTransferRequest{
			PayFrom:    payFrom,
			AssetValue: ctx.Uint64("amount"),
			BitcoinFee: ctx.Uint64("fee"),
			TransferInfo: rpc.TransferInfoWire{
				Kind: rpc.TransferKindBitcoin,
				BitcoinPayee: rpc.PayeeDescriptorWire{
					Descriptor: descriptor,
					Index:      model.UnhardenedIndex(ctx.Uint("payee-index")),
				},
			},
		}
		return runComposeTransfer(ctx, req)
	},
}

var composeRGBBlindCommand = cli.Command{
	Name:      "compose-rgb-blind",
	Usage:     "compose a colored-asset transfer to a blind UTXO",
	ArgsUsage: "<pay-from-contract-id>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "asset-id", Usage: "the colored asset's ContractId"},
		cli.Uint64Flag{Name: "amount", Usage: "asset units to pay"},
		cli.Uint64Flag{Name: "fee", Usage: "bitcoin miner fee, in sats"},
		cli.StringFlag{Name: "blind-hash", Usage: "hex-encoded 32-byte blind-UTXO hash"},
	},
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.NewExitError("usage: compose-rgb-blind <pay-from-contract-id>", 1)
		}
		payFrom, err := parseContractID(ctx.Args().First())
		if err != nil {
			return err
		}
		assetID, err := parseContractID(ctx.String("asset-id"))
		if err != nil {
			return err
		}
		hashBytes, err := hex.DecodeString(ctx.String("blind-hash"))
		if err != nil || len(hashBytes) != 32 {
			hashBytes, err = zbase32.DecodeString(ctx.String("blind-hash"))
			if err != nil || len(hashBytes) != 32 {
				return fmt.Errorf("--blind-hash must be 32 hex- or zbase32-encoded bytes")
			}
		}
		var hash [32]byte
		copy(hash[:], hashBytes)

		req := rpc.ComposeTransferRequest{
			PayFrom:    payFrom,
			AssetValue: ctx.Uint64("amount"),
			BitcoinFee: ctx.Uint64("fee"),
			TransferInfo: rpc.TransferInfoWire{
				Kind:            rpc.TransferKindRGB,
				RGBContractID:   assetID,
				RGBReceiverKind: rpc.RGBReceiverKindBlindUtxo,
				RGBBlindHash:    hash,
			},
		}
		return runComposeTransfer(ctx, req)
	},
}

func runComposeTransfer(ctx *cli.Context, req rpc.ComposeTransferRequest) error {
	c, err := client(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	var reply rpc.PreparedTransferReply
	if err := c.call(rpc.ReqComposeTransfer, req.StrictEncode, reply.StrictDecode); err != nil {
		return err
	}
	fmt.Printf("psbt=%s\n", hex.EncodeToString(reply.PSBT))
	if len(reply.Consignment) > 0 {
		fmt.Printf("consignment=%s\n", hex.EncodeToString(reply.Consignment))
	}
	return nil
}

func decodePayeeDescriptorHex(s string) (model.ContractDescriptor, error) {
	if s == "" {
		return model.ContractDescriptor{}, fmt.Errorf("--payee-descriptor-hex is required")
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return model.ContractDescriptor{}, fmt.Errorf("decode --payee-descriptor-hex: %w", err)
	}
	return rpc.DecodeContractDescriptor(raw)
}

var finalizeTransferCommand = cli.Command{
	Name:      "finalize-transfer",
	Usage:     "finalize and broadcast a PSBT produced by compose-bitcoin/compose-rgb-blind",
	ArgsUsage: "<psbt-hex>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.NewExitError("usage: finalize-transfer <psbt-hex>", 1)
		}
		psbt, err := hex.DecodeString(ctx.Args().First())
		if err != nil {
			return fmt.Errorf("decode psbt hex: %w", err)
		}
		c, err := client(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		req := rpc.PSBTRequest{PSBT: psbt}
		var txid [32]byte
		decode := func(r io.Reader) error {
			_, err := io.ReadFull(r, txid[:])
			return err
		}
		if err := c.call(rpc.ReqFinalizeTransfer, req.StrictEncode, decode); err != nil {
			return err
		}
		fmt.Printf("broadcast txid=%x\n", txid)
		return nil
	},
}

var acceptTransferCommand = cli.Command{
	Name:      "accept-transfer",
	Usage:     "submit a received consignment for validation and acceptance",
	ArgsUsage: "<consignment-hex>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.NewExitError("usage: accept-transfer <consignment-hex>", 1)
		}
		consignment, err := hex.DecodeString(ctx.Args().First())
		if err != nil {
			return fmt.Errorf("decode consignment hex: %w", err)
		}
		c, err := client(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		req := rpc.ConsignmentRequest{Consignment: consignment}
		var reply rpc.ValidationStatusReply
		if err := c.call(rpc.ReqAcceptTransfer, req.StrictEncode, reply.StrictDecode); err != nil {
			return err
		}
		fmt.Println(validationStatusString(reply.Status))
		return nil
	},
}

func validationStatusString(s assetclient.ValidationStatus) string {
	switch s {
	case assetclient.ValidationValid:
		return "valid"
	case assetclient.ValidationInvalid:
		return "invalid"
	default:
		return "unresolved"
	}
}

var listIdentitiesCommand = cli.Command{
	Name:  "list-identities",
	Usage: "list registered identities",
	Action: func(ctx *cli.Context) error {
		c, err := client(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		var reply rpc.IdentitiesReply
		if err := c.call(rpc.ReqListIdentities, nil, reply.StrictDecode); err != nil {
			return err
		}

		t := newTable(os.Stdout)
		t.AppendHeader(table.Row{"Name", "XPub"})
		for _, id := range reply.Identities {
			t.AppendRow(table.Row{id.Name, id.XPub})
		}
		t.Render()
		return nil
	},
}

var addSignerCommand = cli.Command{
	Name:      "add-signer",
	Usage:     "register a signer account",
	ArgsUsage: "<name> <xpub>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 2 {
			return cli.NewExitError("usage: add-signer <name> <xpub>", 1)
		}
		c, err := client(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		req := rpc.AddSignerRequest{Signer: rpc.Signer{Name: ctx.Args().Get(0), XPub: ctx.Args().Get(1)}}
		if err := c.call(rpc.ReqAddSigner, req.StrictEncode, nil); err != nil {
			return err
		}
		fmt.Println("added")
		return nil
	},
}

var addIdentityCommand = cli.Command{
	Name:      "add-identity",
	Usage:     "register an identity",
	ArgsUsage: "<name> <xpub>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 2 {
			return cli.NewExitError("usage: add-identity <name> <xpub>", 1)
		}
		c, err := client(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		req := rpc.AddIdentityRequest{Identity: rpc.Identity{Name: ctx.Args().Get(0), XPub: ctx.Args().Get(1)}}
		if err := c.call(rpc.ReqAddIdentity, req.StrictEncode, nil); err != nil {
			return err
		}
		fmt.Println("added")
		return nil
	},
}

var importAssetCommand = cli.Command{
	Name:      "import-asset",
	Usage:     "import a colored-asset genesis",
	ArgsUsage: "<genesis-hex>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.NewExitError("usage: import-asset <genesis-hex>", 1)
		}
		genesis, err := hex.DecodeString(ctx.Args().First())
		if err != nil {
			return fmt.Errorf("decode genesis hex: %w", err)
		}
		c, err := client(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		req := rpc.ImportAssetRequest{Genesis: genesis}
		var reply rpc.AssetReply
		if err := c.call(rpc.ReqImportAsset, req.StrictEncode, reply.StrictDecode); err != nil {
			return err
		}
		fmt.Printf("imported %s (%s)\n", reply.Asset.Ticker, reply.Asset.ID)
		return nil
	},
}

var listAssetsCommand = cli.Command{
	Name:  "list-assets",
	Usage: "list every colored asset the asset daemon knows about",
	Action: func(ctx *cli.Context) error {
		c, err := client(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		var reply rpc.AssetsReply
		if err := c.call(rpc.ReqListAssets, nil, reply.StrictDecode); err != nil {
			return err
		}

		t := newTable(os.Stdout)
		t.AppendHeader(table.Row{"Asset ID", "Ticker", "Name"})
		for _, a := range reply.Assets {
			t.AppendRow(table.Row{a.ID, a.Ticker, a.Name})
		}
		t.Render()
		return nil
	},
}

// contractIDAction runs a request whose payload is a bare ContractID and
// whose reply carries no body, printing msg on success.
func contractIDAction(ctx *cli.Context, reqType rpc.RequestType, msg string) error {
	if ctx.NArg() != 1 {
		return cli.NewExitError(fmt.Sprintf("usage: %s <contract-id>", ctx.Command.Name), 1)
	}
	id, err := parseContractID(ctx.Args().First())
	if err != nil {
		return err
	}
	c, err := client(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	req := rpc.ContractIDRequest{ContractID: id}
	if err := c.call(reqType, req.StrictEncode, nil); err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}

// contractIDReplyAction runs a ContractID request whose reply needs custom
// decoding/printing, supplied by newReply.
func contractIDReplyAction(ctx *cli.Context, reqType rpc.RequestType,
	newReply func() (interface{ StrictDecode(io.Reader) error }, func())) error {

	if ctx.NArg() != 1 {
		return cli.NewExitError(fmt.Sprintf("usage: %s <contract-id>", ctx.Command.Name), 1)
	}
	id, err := parseContractID(ctx.Args().First())
	if err != nil {
		return err
	}
	c, err := client(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	reply, print := newReply()
	req := rpc.ContractIDRequest{ContractID: id}
	if err := c.call(reqType, req.StrictEncode, reply.StrictDecode); err != nil {
		return err
	}
	print()
	return nil
}
