// Package harness runs removal scenarios end to end against a corpus laid
// out on disk.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	secret: s3cr3t            # optional, defaults to s3cr3t
//	mode: batch               # optional, sequential or batch
//	workers: 2                # optional
//	dry_run: false            # optional
//	identifiers:
//	  - did:plc:abc123
//	files:
//	  - path: processed_0_clusters/cluster_0.jsonl
//	    terminator: crlf      # optional, lf or crlf
//	    no_final_newline: true
//	    records:
//	      - messages:
//	          - { author: did:plc:abc123, text: hello }
//	      - raw: '{not json'
//	expect:
//	  total_removed: 1
//	  removed: [1]            # per identifier, in list order
//	  survivors:
//	    processed_0_clusters/cluster_0.jsonl: [1]
//	  untouched: [processed_1_clusters/cluster_0.jsonl]
//	  error: ""               # substring of the expected run error
//
// Messages are written with the stored user_id the publishing pipeline
// would have computed for their author, so a scenario only names raw
// identifiers. Raw records are written verbatim.
//
// # Checks
//
// Every scenario is also checked for leftover staging files. Survivors are
// compared byte for byte with the original lines, terminators included.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/selective_removal.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario, dir)
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
