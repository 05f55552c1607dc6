package k8s

import "k8s.io/apimachinery/pkg/runtime/schema"

// GVK classification functions for branching by resource kind.
//
// Classification follows three buckets: convertible (workload, Service,
// config, storage, networking — handled by the pipeline), silently ignored
// (never worth a warning), and known-unsupported (worth exactly one warning
// per kind, not per instance). Anything else is an unknown kind.

// IsWorkload returns true for manifests that produce a main compose service:
// Deployment, StatefulSet, DaemonSet (apps/v1) and Job (batch/v1).
func IsWorkload(gvk schema.GroupVersionKind) bool {
	switch gvk.Kind {
	case "Deployment", "StatefulSet", "DaemonSet":
		return gvk.Group == "apps"
	case "Job":
		return gvk.Group == "batch"
	}

	return false
}

// IsDeployment returns true for apps/v1 Deployment.
func IsDeployment(gvk schema.GroupVersionKind) bool {
	return gvk.Group == "apps" && gvk.Kind == "Deployment"
}

// IsStatefulSet returns true for apps/v1 StatefulSet.
func IsStatefulSet(gvk schema.GroupVersionKind) bool {
	return gvk.Group == "apps" && gvk.Kind == "StatefulSet"
}

// IsDaemonSet returns true for apps/v1 DaemonSet.
func IsDaemonSet(gvk schema.GroupVersionKind) bool {
	return gvk.Group == "apps" && gvk.Kind == "DaemonSet"
}

// IsJob returns true for batch/v1 Job (not CronJob).
func IsJob(gvk schema.GroupVersionKind) bool {
	return gvk.Group == "batch" && gvk.Kind == "Job"
}

// IsService returns true for core/v1 Service.
func IsService(gvk schema.GroupVersionKind) bool {
	return isCoreGroup(gvk.Group) && gvk.Kind == "Service"
}

// IsConfig returns true for ConfigMap and Secret.
func IsConfig(gvk schema.GroupVersionKind) bool {
	if !isCoreGroup(gvk.Group) {
		return false
	}

	return gvk.Kind == "ConfigMap" || gvk.Kind == "Secret"
}

// IsStorage returns true for PersistentVolumeClaim and PersistentVolume.
func IsStorage(gvk schema.GroupVersionKind) bool {
	if !isCoreGroup(gvk.Group) {
		return false
	}

	return gvk.Kind == "PersistentVolumeClaim" || gvk.Kind == "PersistentVolume"
}

// IsPVC returns true for core/v1 PersistentVolumeClaim only.
func IsPVC(gvk schema.GroupVersionKind) bool {
	return isCoreGroup(gvk.Group) && gvk.Kind == "PersistentVolumeClaim"
}

// IsNetworking returns true for Ingress.
func IsNetworking(gvk schema.GroupVersionKind) bool {
	return gvk.Kind == "Ingress" && (gvk.Group == "networking.k8s.io" || gvk.Group == "extensions")
}

// IsCRD returns true for CustomResourceDefinition.
func IsCRD(gvk schema.GroupVersionKind) bool {
	return gvk.Kind == "CustomResourceDefinition" && gvk.Group == "apiextensions.k8s.io"
}

// IsRBAC returns true for RBAC role/binding kinds.
func IsRBAC(gvk schema.GroupVersionKind) bool {
	if gvk.Group != "rbac.authorization.k8s.io" {
		return false
	}

	switch gvk.Kind {
	case "Role", "ClusterRole", "RoleBinding", "ClusterRoleBinding":
		return true
	}

	return false
}

// IsServiceAccount returns true for core/v1 ServiceAccount.
func IsServiceAccount(gvk schema.GroupVersionKind) bool {
	return isCoreGroup(gvk.Group) && gvk.Kind == "ServiceAccount"
}

// IsSilentlyIgnored returns true for kinds the Manifest Index drops without
// a warning: RBAC, ServiceAccount, NetworkPolicy, IngressClass, admission
// webhooks, Namespace, and any CustomResourceDefinition (CRD instances are
// only kept if some extension later claims their kind).
func IsSilentlyIgnored(gvk schema.GroupVersionKind) bool {
	if IsRBAC(gvk) || IsServiceAccount(gvk) || IsCRD(gvk) {
		return true
	}

	if gvk.Kind == "NetworkPolicy" && gvk.Group == "networking.k8s.io" {
		return true
	}

	if gvk.Kind == "IngressClass" && gvk.Group == "networking.k8s.io" {
		return true
	}

	if gvk.Group == "admissionregistration.k8s.io" {
		switch gvk.Kind {
		case "ValidatingWebhookConfiguration", "MutatingWebhookConfiguration":
			return true
		}
	}

	if isCoreGroup(gvk.Group) && gvk.Kind == "Namespace" {
		return true
	}

	return false
}

// IsKnownUnsupported returns true for kinds the Manifest Index recognises
// but does not convert: CronJob, HorizontalPodAutoscaler, PodDisruptionBudget.
// One warning is emitted per kind, not per instance.
func IsKnownUnsupported(gvk schema.GroupVersionKind) bool {
	if gvk.Kind == "CronJob" && gvk.Group == "batch" {
		return true
	}

	if gvk.Kind == "HorizontalPodAutoscaler" && gvk.Group == "autoscaling" {
		return true
	}

	if gvk.Kind == "PodDisruptionBudget" && gvk.Group == "policy" {
		return true
	}

	return false
}

// APIVersion renders a GroupVersionKind's apiVersion string, omitting the
// group for the core group.
func APIVersion(gvk schema.GroupVersionKind) string {
	return gvk.GroupVersion().String()
}

func isCoreGroup(group string) bool {
	return group == "" || group == "core"
}
