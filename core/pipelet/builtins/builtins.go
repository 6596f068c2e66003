// Package builtins ships the pipelet templates installed by the seed command.
// Each template is a complete fragment satisfying the run(message, context)
// contract.
package builtins

// Pipelet describes a built-in pipelet template.
type Pipelet struct {
	Name        string
	Event       string
	Code        string
	Description string
}

const transformerCode = `def run(message, context):
    """Rename and enrich fields in the payload."""

    result = dict(message or {})
    if "meterStart" in result:
        result["meter_start"] = result.pop("meterStart")
    result.setdefault("source", "ocpp")
    return result
`

const filterCode = `def run(message, context):
    """Allow only StartTransaction events to pass through."""

    if context.get("event") != "StartTransaction":
        return None
    return message
`

const routerCode = `def run(message, context):
    """Decide on a routing target and store it in the context."""

    cp_id = context.get("cp_id", "unknown")
    if isinstance(cp_id, str) and cp_id.endswith("1"):
        target = "A"
    else:
        target = "B"
    context.setdefault("route_to", {})["cpms"] = target
    return message
`

const loggerCode = `from datetime import datetime

def run(message, context):
    """Append a structured log entry to the context."""

    entries = context.setdefault("__log", [])
    entries.append(
        {
            "level": "info",
            "timestamp": datetime.utcnow().isoformat() + "Z",
            "message": "Pipelet executed",
        }
    )
    return message
`

const templateCode = `from copy import deepcopy

def run(message, context):
    """Return an augmented copy of the incoming message for debugging."""

    data = deepcopy(message or {})
    data["_debug"] = f"cp={context.get('cp_id', 'unknown')}"
    return data
`

const webhookCode = `def run(message, context):
    """Record the webhook target; delivery is handled out of band."""

    url = context.get("webhook_url")
    if not url:
        return message
    entries = context.setdefault("__log", [])
    entries.append({"level": "info", "message": f"webhook POST to {url} (stub)"})
    return message
`

const mqttCode = `def run(message, context):
    """Simulate publishing the message to an MQTT topic."""

    topic = context.get("mqtt_topic", "ocpp/pipelet")
    entries = context.setdefault("__log", [])
    entries.append({
        "level": "info",
        "message": f"MQTT publish to {topic} (stub)",
    })
    return message
`

// All returns every built-in template in installation order.
func All() []Pipelet {
	return []Pipelet{
		{Name: "Start Meter Transformer", Event: "StartTransaction", Code: transformerCode,
			Description: "Renames meterStart to meter_start and adds source=ocpp."},
		{Name: "Event Filter", Event: "StartTransaction", Code: filterCode,
			Description: "Passes only StartTransaction events, drops everything else."},
		{Name: "Routing Decision", Event: "StartTransaction", Code: routerCode,
			Description: "Routes the message to a target depending on the charge point id."},
		{Name: "Structured Logger", Event: "StartTransaction", Code: loggerCode,
			Description: "Appends structured log entries to the context (__log)."},
		{Name: "Debug Template", Event: "StartTransaction", Code: templateCode,
			Description: "Adds a debug field carrying the charge point id."},
		{Name: "HTTP Webhook (Stub)", Event: "StartTransaction", Code: webhookCode,
			Description: "Demonstrates handing the payload to an HTTP webhook."},
		{Name: "MQTT Publish (Stub)", Event: "StartTransaction", Code: mqttCode,
			Description: "Demonstrates handing the payload to MQTT."},
	}
}
