package chain

import "testing"

func TestRequiredConfirmations(t *testing.T) {
	cases := map[string]int64{
		Arbitrum: 12,
		Base:     12,
		Polygon:  128,
	}
	for chain, want := range cases {
		got, err := RequiredConfirmations(chain)
		if err != nil {
			t.Fatalf("RequiredConfirmations(%s): %v", chain, err)
		}
		if got != want {
			t.Fatalf("RequiredConfirmations(%s): expected %d, got %d", chain, want, got)
		}
	}
	if _, err := RequiredConfirmations("solana"); err == nil {
		t.Fatal("expected error for unsupported chain")
	}
}

func TestContractLookupRoundTrip(t *testing.T) {
	for _, chain := range []string{Arbitrum, Base, Polygon} {
		for _, asset := range []string{"USDC", "USDT"} {
			addr, err := ContractFor(chain, asset)
			if err != nil {
				t.Fatalf("ContractFor(%s, %s): %v", chain, asset, err)
			}
			if got := AssetForContract(chain, addr); got != asset {
				t.Fatalf("AssetForContract(%s, %s): expected %s, got %q", chain, addr, asset, got)
			}
		}
	}
}

func TestAssetForContractUnknown(t *testing.T) {
	if got := AssetForContract(Arbitrum, "0x000000000000000000000000000000000000dead"); got != "" {
		t.Fatalf("expected empty asset for unknown contract, got %q", got)
	}
	if got := AssetForContract("unknown", "0x0"); got != "" {
		t.Fatalf("expected empty asset for unknown chain, got %q", got)
	}
}

func TestContractForErrors(t *testing.T) {
	if _, err := ContractFor("arbitrum", "DAI"); err == nil {
		t.Fatal("expected error for unsupported asset")
	}
	if _, err := ContractFor("ethereum", "USDC"); err == nil {
		t.Fatal("expected error for unsupported chain")
	}
}
