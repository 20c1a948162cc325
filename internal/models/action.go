package models

// Action identifies a remediation the downstream agents can execute. Advisors
// may propose arbitrary action names; only the actions below pass the safety
// allow-list unmodified.
type Action string

const (
	ActionRestartPod         Action = "restart_pod"
	ActionRollbackDeployment Action = "rollback_deployment"
	ActionReplacePod         Action = "replace_pod"
	ActionRebuildDeployment  Action = "rebuild_deployment"
	ActionTriggerHeal        Action = "trigger_heal"
	ActionTriggerCodeFix     Action = "trigger_code_fix"
	ActionScaleUp            Action = "scale_up"
	ActionScaleDown          Action = "scale_down"
	ActionDoNothing          Action = "do_nothing"
)

// RemediationActions lists every action the engine may emit, in a stable
// order.
func RemediationActions() []Action {
	return []Action{
		ActionRestartPod,
		ActionRollbackDeployment,
		ActionReplacePod,
		ActionRebuildDeployment,
		ActionTriggerHeal,
		ActionTriggerCodeFix,
		ActionScaleUp,
		ActionScaleDown,
		ActionDoNothing,
	}
}
