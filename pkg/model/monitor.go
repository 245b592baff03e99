// Package model holds the configuration-time data model shared by every
// component: Monitor, Network, Trigger, and the match-condition / retry
// structures that hang off them.
package model

import "github.com/openzeppelin-fork/monitor-go/pkg/chain"

// Monitor is a named, enabled-or-paused rule, immutable for the life of a
// run and reloaded only at startup.
type Monitor struct {
	Name              string            `json:"name"`
	Paused            bool              `json:"paused"`
	Networks          []string          `json:"networks"`
	Addresses         []MonitorAddress  `json:"addresses"`
	MatchConditions   MatchConditions   `json:"match_conditions"`
	TriggerConditions []TriggerScript   `json:"trigger_conditions,omitempty"`
	Triggers          []string          `json:"triggers"`
}

// MonitorAddress pairs a watched address with an optional inline contract
// spec (ABI JSON for EVM, SEP-48 JSON for Stellar). When ContractSpec is
// empty the filter engine resolves it from the per-tick cache / RPC.
type MonitorAddress struct {
	Address      string `json:"address"`
	ContractSpec string `json:"contract_spec,omitempty"`
}

// MatchConditions groups the three condition kinds a monitor can define.
// All three being empty makes the monitor "unconditional".
type MatchConditions struct {
	Functions    []FunctionCondition    `json:"functions,omitempty"`
	Events       []EventCondition       `json:"events,omitempty"`
	Transactions []TransactionCondition `json:"transactions,omitempty"`
}

func (c MatchConditions) HasFunctions() bool    { return len(c.Functions) > 0 }
func (c MatchConditions) HasEvents() bool       { return len(c.Events) > 0 }
func (c MatchConditions) HasTransactions() bool { return len(c.Transactions) > 0 }

// FunctionCondition matches a decoded call by chain-specific signature, with
// an optional boolean expression over its decoded parameters.
type FunctionCondition struct {
	Signature  string `json:"signature"`
	Expression string `json:"expression,omitempty"`
}

// EventCondition matches a decoded log/event by signature, with an optional
// expression over its decoded parameters.
type EventCondition struct {
	Signature  string `json:"signature"`
	Expression string `json:"expression,omitempty"`
}

// TxStatus is the transaction condition's status gate.
type TxStatus string

const (
	TxStatusAny     TxStatus = "any"
	TxStatusSuccess TxStatus = "success"
	TxStatusFailure TxStatus = "failure"
)

// TransactionCondition gates on tx status plus an optional expression over
// the standard tx-level parameter set.
type TransactionCondition struct {
	Status     TxStatus `json:"status"`
	Expression string   `json:"expression,omitempty"`
}

// ScriptLanguage names the interpreter a trigger-condition or Script trigger
// runs under.
type ScriptLanguage string

const (
	ScriptLanguageJavaScript ScriptLanguage = "javascript"
	ScriptLanguagePython     ScriptLanguage = "python"
	ScriptLanguageBash       ScriptLanguage = "bash"
)

// TriggerScript is a per-monitor filter script run before dispatch. Any
// truthy script removes the match from further processing.
type TriggerScript struct {
	Language   ScriptLanguage `json:"language"`
	ScriptPath string         `json:"script_path"`
	Arguments  []string       `json:"arguments,omitempty"`
	TimeoutMS  int            `json:"timeout_ms"`
}

// Endpoint is one RPC endpoint in a network's weighted pool.
type Endpoint struct {
	URL    SecretSpec `json:"url"`
	Weight int        `json:"weight"`
}

// Network describes one chain to watch.
type Network struct {
	ID                 string            `json:"id"`
	Kind               chain.Kind        `json:"kind"`
	Endpoints          []Endpoint        `json:"endpoints"`
	Tags               map[string]string `json:"tags,omitempty"`
	Cron               string            `json:"cron_schedule"`
	ConfirmationBlocks uint64            `json:"confirmation_blocks"`
	BlockTimeMS        uint64            `json:"block_time_ms"`
	MaxPastBlocks      *uint64           `json:"max_past_blocks,omitempty"`
	StoreBlocks        bool              `json:"store_blocks,omitempty"`
	RetryPolicy        RetryPolicy       `json:"retry_policy,omitempty"`
}

// TriggerKind enumerates the notification sink kinds.
type TriggerKind string

const (
	TriggerKindSlack    TriggerKind = "slack"
	TriggerKindDiscord  TriggerKind = "discord"
	TriggerKindTelegram TriggerKind = "telegram"
	TriggerKindWebhook  TriggerKind = "webhook"
	TriggerKindEmail    TriggerKind = "email"
	TriggerKindScript   TriggerKind = "script"
)

// JitterMode selects the backoff jitter strategy.
type JitterMode string

const (
	JitterNone JitterMode = "none"
	JitterFull JitterMode = "full"
)

// RetryPolicy is the shared retry-policy struct reused by every HTTP-ish
// sink and by the chain client's endpoint pool.
type RetryPolicy struct {
	MaxRetries       uint32     `json:"max_retries"`
	BaseForBackoff   uint32     `json:"base_for_backoff"`
	InitialBackoffMS uint32     `json:"initial_backoff_ms"`
	MaxBackoffMS     uint32     `json:"max_backoff_ms"`
	Jitter           JitterMode `json:"jitter"`
}

// DefaultRetryPolicy returns the policy applied when a network or trigger
// config omits one.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:       3,
		BaseForBackoff:   2,
		InitialBackoffMS: 250,
		MaxBackoffMS:     10_000,
		Jitter:           JitterFull,
	}
}

// Message is the notification template: a title plus a ${path}-substituted
// body.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Trigger is a named sink configuration. Exactly one of the kind-specific
// configs is populated, matching Kind.
type Trigger struct {
	ID          string           `json:"id"`
	Kind        TriggerKind      `json:"kind"`
	Slack       *SlackConfig     `json:"slack,omitempty"`
	Discord     *DiscordConfig   `json:"discord,omitempty"`
	Telegram    *TelegramConfig  `json:"telegram,omitempty"`
	Webhook     *WebhookConfig   `json:"webhook,omitempty"`
	Email       *EmailConfig     `json:"email,omitempty"`
	Script      *ScriptConfig    `json:"script,omitempty"`
}

type SlackConfig struct {
	URL         SecretSpec  `json:"url"`
	Message     Message     `json:"message"`
	RetryPolicy RetryPolicy `json:"retry_policy"`
}

type DiscordConfig struct {
	URL         SecretSpec  `json:"url"`
	Message     Message     `json:"message"`
	RetryPolicy RetryPolicy `json:"retry_policy"`
}

type TelegramConfig struct {
	Token              SecretSpec  `json:"token"`
	ChatID             string      `json:"chat_id"`
	DisableWebPreview  bool        `json:"disable_web_preview,omitempty"`
	Message            Message     `json:"message"`
	RetryPolicy        RetryPolicy `json:"retry_policy"`
}

type WebhookConfig struct {
	URL         SecretSpec        `json:"url"`
	Method      string            `json:"method,omitempty"`
	Secret      SecretSpec        `json:"secret,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Message     Message           `json:"message"`
	RetryPolicy RetryPolicy       `json:"retry_policy"`
}

type EmailConfig struct {
	Host        string      `json:"host"`
	Port        int         `json:"port,omitempty"`
	Username    SecretSpec  `json:"username"`
	Password    SecretSpec  `json:"password"`
	Sender      string      `json:"sender"`
	Recipients  []string    `json:"recipients"`
	Message     Message     `json:"message"`
	RetryPolicy RetryPolicy `json:"retry_policy"`
}

type ScriptConfig struct {
	Language   ScriptLanguage `json:"language"`
	ScriptPath string         `json:"script_path"`
	Arguments  []string       `json:"arguments,omitempty"`
	TimeoutMS  int            `json:"timeout_ms"`
}
