// Package config resolves pipeline configuration from layered sources.
//
// Precedence, highest to lowest:
//  1. FACTORY_* environment variables
//  2. Local config (.factory.yaml at the git root)
//  3. Global config (~/.config/factory/config.yaml)
//  4. Built-in defaults
//
// # Basic Usage
//
// Most callers want the typed Settings:
//
//	settings, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	fmt.Println(settings.LinearTeamKey)
//
// The underlying resolver is also usable directly:
//
//	cfg := config.NewPipelineResolver().Resolve()
//	fmt.Println(cfg.Get(config.KeyBaseBranch))   // "main"
//	fmt.Println(cfg.Source(config.KeyBaseBranch)) // "default"
//
// # Environment Variables
//
// Keys map to environment variables through the FACTORY_ prefix:
//
//	FACTORY_LINEAR_API_KEY=lin_api_...   # sets "linear_api_key"
//	FACTORY_BASE_BRANCH=develop          # sets "base_branch"
//
// # Saving Values
//
// SaveConfig writes values back, backing `factory -set key=value`:
//
//	err := config.NewPipelineSaver().SaveGlobal(config.KeyLinearAPIKey, key)
package config
