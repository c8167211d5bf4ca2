// Package flexconfig turns flat, hierarchical and remotely stored
// configuration into one queryable tree. Environment variables, JSON/YAML
// files and cloud parameter or secret stores are loaded through the same
// Source, which flattens nested JSON into colon-delimited keys
// ("database:host", "flags:0") and publishes each load as an immutable
// Snapshot.
//
// A Source wraps a Store (see the providers directory for AWS Secrets
// Manager, AWS Systems Manager Parameter Store, Google Secret Manager and
// HashiCorp Vault). Sources are required by default: a failed load is
// returned to the caller. Optional sources skip the entries they cannot read
// and report them to a LoadErrorHandler instead.
//
// Example:
//
//	src, err := flexconfig.NewSource(store,
//	    flexconfig.WithJSONProcessing(true),
//	    flexconfig.WithReloadInterval(5*time.Minute),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer src.Close()
//	if err := src.Load(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	tree := src.Tree()
//	host := tree.Section("database:host").String()
//	port := flexconfig.AsOr(tree.Child("database").Child("port"), 5432)
//
//	var cfg AppConfig
//	if err := tree.Bind(&cfg); err != nil {
//	    log.Println(err)
//	}
package flexconfig
