package router

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// KeywordBonus is added to a signal's base confidence on a keyword hit.
const KeywordBonus = 0.05

// IntentSignal maps text to a capability. A signal matches when any keyword
// is a case-insensitive substring of the input, or, failing that, when its
// pattern matches case-insensitively.
//
// Signals built with NewSignal carry a compiled pattern. Literal signals are
// compiled on first use at match time; an invalid pattern makes that signal
// inert rather than failing the scan.
type IntentSignal struct {
	Pattern    string
	Capability Capability
	Confidence float64
	Keywords   []string

	re *regexp.Regexp
}

// ErrInvalidSignal wraps every signal validation failure.
var ErrInvalidSignal = errors.New("invalid intent signal")

// NewSignal validates and compiles a signal. Keywords are lowercased and
// blank entries dropped.
func NewSignal(capability Capability, confidence float64, pattern string, keywords ...string) (IntentSignal, error) {
	sig := IntentSignal{
		Pattern:    pattern,
		Capability: capability,
		Confidence: confidence,
		Keywords:   normalizeKeywords(keywords),
	}
	if err := sig.compile(); err != nil {
		return IntentSignal{}, err
	}
	return sig, nil
}

func mustSignal(capability Capability, confidence float64, pattern string, keywords ...string) IntentSignal {
	sig, err := NewSignal(capability, confidence, pattern, keywords...)
	if err != nil {
		panic(err)
	}
	return sig
}

// compile validates the signal and caches the compiled pattern.
func (s *IntentSignal) compile() error {
	if strings.TrimSpace(string(s.Capability)) == "" {
		return fmt.Errorf("%w: empty capability", ErrInvalidSignal)
	}
	if s.Confidence < 0 || s.Confidence > 1 || s.Confidence != s.Confidence {
		return fmt.Errorf("%w: %s confidence %v outside [0,1]", ErrInvalidSignal, s.Capability, s.Confidence)
	}
	if s.Pattern == "" {
		if len(s.Keywords) == 0 {
			return fmt.Errorf("%w: %s has neither pattern nor keywords", ErrInvalidSignal, s.Capability)
		}
		return nil
	}
	re, err := regexp.Compile("(?i)" + s.Pattern)
	if err != nil {
		return fmt.Errorf("%w: %s pattern %q: %v", ErrInvalidSignal, s.Capability, s.Pattern, err)
	}
	s.re = re
	return nil
}

// matchPattern reports whether the pattern matches lower. Signals whose
// pattern is empty or does not compile never match.
func (s *IntentSignal) matchPattern(lower string) bool {
	if s.Pattern == "" {
		return false
	}
	re := s.re
	if re == nil {
		var err error
		re, err = regexp.Compile("(?i)" + s.Pattern)
		if err != nil {
			return false
		}
	}
	return re.MatchString(lower)
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

// BuiltinSignals returns the static signal table. Research, system and docs
// patterns sit below the escalation threshold, so a pattern-only match goes
// to the classifier; their keyword hits (0.75, 0.77, 0.79) resolve on Tier-1.
func BuiltinSignals() []IntentSignal {
	return []IntentSignal{
		mustSignal(CapabilitySecurity, 0.88, `\b(owasp|csrf|ssrf|xss)\b`,
			"vulnerability", "vulnerabilities", "security audit", "sql injection", "cve-", "secret leak", "hardcoded credential",
			"安全漏洞", "安全审计",
		),
		mustSignal(CapabilityCodeReview, 0.85, `\blook\s+over\s+(my|this|the)\s+(code|diff|changes)\b`,
			"review", "code review", "pr feedback",
			"代码评审", "审查代码",
		),
		mustSignal(CapabilityGit, 0.85, `\b(git|branch|merge|rebase|stash|diff)\b`,
			"cherry-pick", "pull request", "commit message", "git log",
			"提交", "分支", "合并", "推送", "拉取请求", "提交记录", "提交历史",
		),
		mustSignal(CapabilityDebug, 0.82, `\b(segfault|traceback|nil pointer|deadlock)\b`,
			"error", "failed", "failing", "failure", "panic", "stack trace", "exception", "crash", "bug", "build fails", "test fails",
			"报错", "异常", "崩溃", "堆栈", "定位根因", "编译失败", "测试失败", "无法复现",
		),
		mustSignal(CapabilityTest, 0.80, `\b(tests?|coverage|benchmarks?)\b`,
			"unit test", "write tests", "test coverage", "test case", "table-driven",
			"测试用例", "单元测试",
		),
		mustSignal(CapabilityRefactor, 0.80, `\b(dedupe|restructure|decouple)\b`,
			"refactor", "rename", "extract function", "extract method", "clean up", "simplify",
			"重构",
		),
		mustSignal(CapabilityCodebase, 0.78, `find\s+where\s+[a-z_][a-z0-9_]*\s+(is\s+)?(defined|used|called|referenced)`,
			"repository architecture", "repo architecture", "key modules", "main entrypoint", "startup flow", "call chain", "where is",
			"架构", "入口", "关键模块", "调用链", "定义在哪里", "在哪定义", "仓库结构", "项目结构",
		),
		mustSignal(CapabilityResearch, 0.70, `\b(compare|versus|alternatives?)\b`,
			"latest", "official docs", "news", "search web", "online", "github.com/",
			"最新", "官方文档", "联网", "搜索", "官网", "教程",
		),
		mustSignal(CapabilitySystem, 0.72, `\b(ls|df|du|ps|pwd|htop)\b`,
			"disk", "hard drive", "cpu usage", "memory usage", "process", "terminal", "environment variable",
			"磁盘", "硬盘", "内存", "进程", "终端", "命令行", "系统资源",
		),
		mustSignal(CapabilityDocs, 0.74, `\bdocument(ation|ing)?\b`,
			"readme", "docstring", "changelog", "godoc", "write docs",
			"文档", "注释",
		),
	}
}
