package passes

import (
	"path/filepath"

	"github.com/gomlx/savedmodel-gomlx/ir"
	"k8s.io/klog/v2"
)

// FreezeAssetsName is the registry name of the pass returned by NewFreezeAssetsPass.
const FreezeAssetsName = "freeze-assets"

type freezeAssets struct {
	baseDirectory string
}

// NewFreezeAssetsPass creates a pass that replaces every parameter bound to an asset by a constant holding
// the asset path, joined to baseDirectory, and then deletes the asset.
//
// Asset paths must be relative and stay within baseDirectory (see filepath.IsLocal), otherwise the pass
// fails with ir.InvalidAssetPath.
func NewFreezeAssetsPass(baseDirectory string) Pass {
	return &freezeAssets{baseDirectory: baseDirectory}
}

// Name implements Pass.
func (p *freezeAssets) Name() string { return FreezeAssetsName }

// AssetPath returns the path of an asset file within baseDirectory.
func AssetPath(baseDirectory string, asset *ir.Asset) (string, error) {
	if asset.Filename == "" {
		return "", ir.Errorf(ir.InvalidAssetPath, ir.SymbolLoc(asset.Name), "asset %q has an empty path", asset.Name)
	}
	if !filepath.IsLocal(asset.Filename) {
		return "", ir.Errorf(ir.InvalidAssetPath, ir.SymbolLoc(asset.Name),
			"asset %q path %q is absolute or escapes the base directory", asset.Name, asset.Filename)
	}
	return filepath.Join(baseDirectory, asset.Filename), nil
}

// Rewrite implements Pass.
func (p *freezeAssets) Rewrite(m *ir.Module) error {
	// Number of constants already inserted at the start of each function, to keep them in asset order.
	inserted := make(map[*ir.Function]int)
	for _, asset := range m.Symbols().Assets() {
		path, err := AssetPath(p.baseDirectory, asset)
		if err != nil {
			return err
		}
		bindings := m.Symbols().Bindings(asset.Name)
		for _, b := range bindings {
			fn, param := b.Function, b.Param()
			if !fn.HasUses(param.Name) {
				continue
			}
			cst := ir.NewConst(fn.FreshValueName(param.Name+"_path"), path)
			cst.Loc = ir.SymbolLoc(asset.Name)
			fn.InsertOps(inserted[fn], cst)
			inserted[fn]++
			fn.ReplaceAllUses(param.Name, cst.Results[0])
		}
		if err := eraseBindings(m, bindings); err != nil {
			return err
		}
		if err := m.Symbols().Remove(asset.Name); err != nil {
			return err
		}
		klog.V(2).Infof("froze asset %q as %q", asset.Name, path)
	}
	return nil
}
