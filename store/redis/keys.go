package redis

// Redis key naming conventions for bidflow data.
// All keys are prefixed with "bidflow:" to avoid collisions.

const keyPrefix = "bidflow:"

// ── Definition keys ──

// defKey returns the key for a workflow definition: bidflow:def:{id}
func defKey(id string) string { return keyPrefix + "def:" + id }

// ── Execution state keys ──

// stateKey returns the key for an execution record: bidflow:wf:{id}
func stateKey(id string) string { return keyPrefix + "wf:" + id }

// stateIDsKey is the Set tracking all execution IDs for enumeration.
const stateIDsKey = keyPrefix + "wf_ids"

// tenantStatesKey returns the Set tracking a tenant's execution IDs.
func tenantStatesKey(tenantID string) string {
	return keyPrefix + "tenant:" + tenantID + ":wfs"
}

// ── Checkpoint keys ──

// checkpointsKey returns the List holding an execution's checkpoints in
// append order: bidflow:wf:{id}:ckpts
func checkpointsKey(execID string) string {
	return keyPrefix + "wf:" + execID + ":ckpts"
}

// ── Notification rule keys ──

// ruleKey returns the key for a notification rule: bidflow:rule:{id}
func ruleKey(id string) string { return keyPrefix + "rule:" + id }

// tenantRulesKey returns the Set tracking a tenant's rule IDs.
func tenantRulesKey(tenantID string) string {
	return keyPrefix + "tenant:" + tenantID + ":rules"
}
