package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alznet/niev/internal/interop"
	"github.com/alznet/niev/internal/merkle"
	"github.com/alznet/niev/internal/storage"
	"github.com/alznet/niev/internal/types"
)

var (
	callParams  string
	callVerify  bool
	atomicCalls []string
	atomicFail  []string
)

var callCmd = &cobra.Command{
	Use:   "call <source> <target> <function>",
	Short: "Execute a function on a target chain and attach all proofs",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := map[string]interface{}{}
		if callParams != "" {
			if err := json.Unmarshal([]byte(callParams), &params); err != nil {
				return fmt.Errorf("invalid --params: %w", err)
			}
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		svc, err := newService(cmd, cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		result, err := svc.ExecuteCrossChainWithProofs(cmd.Context(), args[0], args[1], args[2], params)
		if err != nil {
			if result != nil {
				_ = printJSON(cmd, result)
			}
			return err
		}
		if callVerify {
			if err := svc.VerifyResult(cmd.Context(), args[1], result); err != nil {
				return err
			}
		}
		return printJSON(cmd, result)
	},
}

var atomicCmd = &cobra.Command{
	Use:   "atomic",
	Short: "Execute calls on several chains as one atomic unit",
	Example: `  niev atomic --call 'polygon:transfer:{"to":"0x742d35Cc6634C0532925a3b844Bc454e4438f44e","amount":1}' \
              --call 'bitcoin:transfer' --call 'solana:swap' --fail bitcoin`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(atomicCalls) == 0 {
			return fmt.Errorf("at least one --call is required")
		}
		calls := make([]types.Call, 0, len(atomicCalls))
		for _, raw := range atomicCalls {
			call, err := interop.ParseCall(raw)
			if err != nil {
				return err
			}
			calls = append(calls, call)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Connector.FailChains = append(cfg.Connector.FailChains, atomicFail...)
		svc, err := newService(cmd, cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		record, err := svc.ExecuteAtomic(cmd.Context(), calls)
		if record != nil {
			if perr := printJSON(cmd, record); perr != nil {
				return perr
			}
		}
		if err != nil {
			return err
		}
		if !record.Confirmed() {
			return fmt.Errorf("atomic execution %s rolled back: %s", record.ExecutionID, record.Error)
		}
		return nil
	},
}

var verifyMerkleCmd = &cobra.Command{
	Use:   "verify-merkle <proof.json>",
	Short: "Verify a merkle proof read from a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read proof: %w", err)
		}
		var proof types.MerkleProof
		if err := json.Unmarshal(data, &proof); err != nil {
			return fmt.Errorf("failed to parse proof: %w", err)
		}
		if err := merkle.NewTunnel(proof.TreeDepth, nil).Check(&proof); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "merkle proof for %s is valid (root %s)\n", proof.ChainID, proof.MerkleRoot)
		return nil
	},
}

var recordCmd = &cobra.Command{
	Use:   "record <execution-id>",
	Short: "Show a stored atomic execution record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Atomic.RecordDir == "" {
			return fmt.Errorf("atomic.record_dir is not configured")
		}
		records, err := storage.NewRecordStore(cfg.Atomic.RecordDir)
		if err != nil {
			return err
		}
		record, err := records.Get(args[0])
		if err != nil {
			return fmt.Errorf("record %s: %w", args[0], err)
		}
		return printJSON(cmd, record)
	},
}

func init() {
	callCmd.Flags().StringVarP(&callParams, "params", "p", "", "function parameters as a JSON object")
	callCmd.Flags().BoolVar(&callVerify, "verify", true, "verify the attached proofs")

	atomicCmd.Flags().StringArrayVar(&atomicCalls, "call", nil, "participant as chain:function[:json params], repeatable")
	atomicCmd.Flags().StringSliceVar(&atomicFail, "fail", nil, "chains whose connector fails, for rollback drills")
}
