package skeleton

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repotutor/internal/manifest"
	"repotutor/internal/repo"
)

func names(syms []Symbol) []string {
	var out []string
	for _, s := range syms {
		out = append(out, s.Kind+":"+s.Name)
	}
	return out
}

func TestExtractGo(t *testing.T) {
	src := `package store

// Store persists things.
type Store interface {
	Get(id string) (string, error)
}

type memStore struct {
	m map[string]string
}

type ID string

func New() *memStore { return &memStore{} }

func (s *memStore) Get(id string) (string, error) {
	if v, ok := s.m[id]; ok {
		return v, nil
	}
	return "", nil
}

func Map[T any](xs []T) []T { return xs }
`
	syms := Extract("go", strings.Split(src, "\n"))
	assert.Equal(t, []string{
		"interface:Store", "struct:memStore", "type:ID", "function:New", "method:Get", "function:Map",
	}, names(syms))
	assert.Equal(t, 16, syms[4].Line)
	assert.Equal(t, "func (s *memStore) Get(id string) (string, error)", syms[4].Signature)
}

func TestExtractKeepsKeywordLikeNames(t *testing.T) {
	goSrc := "func Do() {}\nfunc With(x int) {}\nfunc new() {}\ntype Return struct{}\n"
	assert.Equal(t, []string{"function:Do", "function:With", "function:new", "struct:Return"},
		names(Extract("go", strings.Split(goSrc, "\n"))))

	javaSrc := "class Repo {\n    public void Delete(String id) {\n    }\n}\n"
	assert.Equal(t, []string{"class:Repo", "method:Delete"}, names(Extract("java", strings.Split(javaSrc, "\n"))))

	tsSrc := "class A {\n  if (ready) {\n  }\n  run() {\n  }\n}\n"
	assert.Equal(t, []string{"class:A", "method:run"}, names(Extract("typescript", strings.Split(tsSrc, "\n"))))
}

func TestExtractTypeScript(t *testing.T) {
	src := `import { x } from "./x";

export interface Props { a: string }
export type Mode = "a" | "b";
export enum Color { Red }
export default class Widget extends Base {
  constructor(private readonly p: Props) {
  }
  async render(): Promise<void> {
    if (this.p) {
    }
  }
}
export const useThing = async (id: string) => {
  return id;
};
function foo() {}
`
	syms := Extract("typescript", strings.Split(src, "\n"))
	assert.Equal(t, []string{
		"interface:Props", "type:Mode", "enum:Color", "class:Widget",
		"method:constructor", "method:render", "function:useThing", "function:foo",
	}, names(syms))
}

func TestExtractPythonRubyRust(t *testing.T) {
	py := "class Repo:\n    def load(self):\n        pass\n\nasync def main():\n    pass\n"
	assert.Equal(t, []string{"class:Repo", "method:load", "function:main"}, names(Extract("python", strings.Split(py, "\n"))))

	rb := "module Billing\n  class Invoice\n    def self.build\n    end\n    def paid?\n    end\n  end\nend\n"
	assert.Equal(t, []string{"module:Billing", "class:Invoice", "method:build", "method:paid?"}, names(Extract("ruby", strings.Split(rb, "\n"))))

	rs := "pub struct Index;\npub trait Search {}\nimpl Search for Index {\n    pub fn find(&self) {}\n}\nmod util;\n"
	assert.Equal(t, []string{"struct:Index", "trait:Search", "impl:Index", "function:find", "module:util"}, names(Extract("rust", strings.Split(rs, "\n"))))
}

func TestExtractJava(t *testing.T) {
	src := "public class OrderService {\n    public static void main(String[] args) {\n    }\n    private List<Order> findAll() {\n        for (Order o : orders) {}\n    }\n}\npublic interface Repo {}\n"
	assert.Equal(t, []string{"class:OrderService", "method:main", "method:findAll", "interface:Repo"}, names(Extract("java", strings.Split(src, "\n"))))
}

func TestExtractUnknownLanguage(t *testing.T) {
	assert.Empty(t, Extract("yaml", []string{"a: b"}))
	assert.False(t, HasRules("yaml"))
	assert.True(t, HasRules("go"))
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestBuilderIndexesManifest(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.ts", "export function foo() {\n  return 1;\n}\n")
	write(t, root, "config.yaml", "port: 8080\n")
	write(t, root, "bin.go", "package x\x00")
	write(t, root, "pkg/b.go", "package pkg\n\nfunc Bar() {}\n")

	ctx := context.Background()
	rp, err := repo.NewResolver(repo.GitHubConfig{}, repo.Limits{}, nil).Resolve(ctx, root, "")
	require.NoError(t, err)
	m, err := manifest.NewBuilder(manifest.Options{}, nil).Build(ctx, rp)
	require.NoError(t, err)

	ix, err := NewBuilder(Options{}, nil).Build(ctx, rp, m)
	require.NoError(t, err)

	foo, ok := ix.FindSymbol("a.ts", "foo")
	require.True(t, ok)
	assert.Equal(t, 1, foo.Line)
	assert.Equal(t, KindFunction, foo.Kind)

	_, ok = ix.File("config.yaml")
	assert.True(t, ok, "zero-symbol files stay path-searchable")
	require.Len(t, ix.Failures, 1)
	assert.Equal(t, "bin.go", ix.Failures[0].Path)
	assert.Equal(t, 2, ix.SymbolFileCount())
	assert.Equal(t, 2, ix.SymbolCount())
}

func TestBuilderCapsFiles(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.go", "package x\nfunc A() {}\n")
	write(t, root, "b.go", "package x\nfunc B() {}\n")
	write(t, root, "c.go", "package x\nfunc C() {}\n")
	ctx := context.Background()
	rp, err := repo.NewResolver(repo.GitHubConfig{}, repo.Limits{}, nil).Resolve(ctx, root, "")
	require.NoError(t, err)
	m, err := manifest.NewBuilder(manifest.Options{}, nil).Build(ctx, rp)
	require.NoError(t, err)
	ix, err := NewBuilder(Options{MaxFiles: 2}, nil).Build(ctx, rp, m)
	require.NoError(t, err)
	assert.Len(t, ix.Files, 2)
	assert.Equal(t, "a.go", ix.Files[0].Path)
	assert.Equal(t, "b.go", ix.Files[1].Path)
}
