package route_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"dispatch-proxy-go/internal/model"
	"dispatch-proxy-go/internal/route"
)

var _ = Describe("Build", func() {
	api := route.Target{URL: "https://api.example.com"}
	fallback := route.Target{URL: "https://www.example.com"}

	It("should prepend a slash to match paths that lack one", func() {
		t := route.Build([]route.Entry{{Path: "old", Target: "https://new.example.com"}}, api, fallback)
		Expect(t.Routes()).To(HaveLen(1))
		Expect(t.Routes()[0].MatchPath).To(Equal("/old"))
	})

	It("should keep declaration order", func() {
		t := route.Build([]route.Entry{
			{Path: "/b", Target: "https://b.example.com"},
			{Path: "/a", Target: "https://a.example.com"},
		}, api, fallback)
		Expect(t.Routes()).To(Equal([]route.Route{
			{MatchPath: "/b", Target: "https://b.example.com", Mode: model.ModeProxy},
			{MatchPath: "/a", Target: "https://a.example.com", Mode: model.ModeProxy},
		}))
	})

	It("should stop at the first gap instead of skipping it", func() {
		t := route.Build([]route.Entry{
			{Path: "/one", Target: "https://one.example.com"},
			{Path: "/two"},
			{Path: "/three", Target: "https://three.example.com"},
		}, api, fallback)
		Expect(t.Routes()).To(HaveLen(1))
		Expect(t.Routes()[0].MatchPath).To(Equal("/one"))
	})

	It("should stop when the path is missing", func() {
		t := route.Build([]route.Entry{{Target: "https://one.example.com"}}, api, fallback)
		Expect(t.Routes()).To(BeEmpty())
	})

	DescribeTable("mode parsing",
		func(raw string, want model.Mode) {
			t := route.Build([]route.Entry{{Path: "/x", Target: "https://x.example.com", Mode: raw}}, api, fallback)
			Expect(t.Routes()[0].Mode).To(Equal(want))
		},
		Entry("absent defaults to PROXY", "", model.ModeProxy),
		Entry("lowercase redirect", "redirect", model.ModeRedirect),
		Entry("uppercase REDIRECT", "REDIRECT", model.ModeRedirect),
		Entry("unknown falls back to PROXY", "teleport", model.ModeProxy),
	)

	It("should default the fixed targets to PROXY", func() {
		t := route.Build(nil, route.Target{URL: "https://api.example.com"}, route.Target{Mode: "redirect"})
		Expect(t.API().Mode).To(Equal(model.ModeProxy))
		Expect(t.Fallback().Mode).To(Equal(model.ModeRedirect))
	})

	It("should be idempotent for the same input", func() {
		entries := []route.Entry{{Path: "a", Target: "https://a.example.com", Mode: "redirect"}}
		Expect(route.Build(entries, api, fallback)).To(Equal(route.Build(entries, api, fallback)))
	})

	It("should hand out copies of the route list", func() {
		t := route.Build([]route.Entry{{Path: "/a", Target: "https://a.example.com"}}, api, fallback)
		rs := t.Routes()
		rs[0].Target = "https://evil.example.com"
		Expect(t.Routes()[0].Target).To(Equal("https://a.example.com"))
	})
})

var _ = Describe("Resolve", func() {
	var table *route.Table

	BeforeEach(func() {
		table = route.Build([]route.Entry{
			{Path: "/a", Target: "https://a.example.com"},
			{Path: "/ab", Target: "https://ab.example.com", Mode: "REDIRECT"},
			{Path: "/api-docs", Target: "https://docs.example.com"},
		},
			route.Target{URL: "https://api.example.com"},
			route.Target{URL: "https://www.example.com", Mode: model.ModeRedirect},
		)
	})

	DescribeTable("the /api prefix always wins with strip length 4",
		func(path string) {
			r := table.Resolve(path)
			Expect(r.Name).To(Equal(route.NameAPI))
			Expect(r.Target).To(Equal("https://api.example.com"))
			Expect(r.StripPrefix).To(Equal(4))
			Expect(r.Mode).To(Equal(model.ModeProxy))
		},
		Entry("bare prefix", "/api"),
		Entry("nested path", "/api/v1/users"),
		Entry("not segment aware", "/apix"),
		Entry("shadows an overlapping dynamic route", "/api-docs/intro"),
	)

	It("should select the first prefix match, not the longest", func() {
		r := table.Resolve("/abc")
		Expect(r.Name).To(Equal("/a"))
		Expect(r.Target).To(Equal("https://a.example.com"))
		Expect(r.StripPrefix).To(Equal(2))
		Expect(r.Mode).To(Equal(model.ModeProxy))
	})

	It("should fall back to the default target with no strip", func() {
		r := table.Resolve("/zzz")
		Expect(r.Name).To(Equal(route.NameDefault))
		Expect(r.Target).To(Equal("https://www.example.com"))
		Expect(r.StripPrefix).To(Equal(0))
		Expect(r.Mode).To(Equal(model.ModeRedirect))
	})

	It("should return an empty target instead of failing when /api is unconfigured", func() {
		t := route.Build(nil, route.Target{}, route.Target{URL: "https://www.example.com"})
		r := t.Resolve("/api/x")
		Expect(r.Name).To(Equal(route.NameAPI))
		Expect(r.Target).To(BeEmpty())
		Expect(r.StripPrefix).To(Equal(4))
	})

	It("should resolve the root path to the fallback", func() {
		Expect(table.Resolve("/").Name).To(Equal(route.NameDefault))
	})
})

var _ = Describe("TargetURL", func() {
	DescribeTable("joining target, remainder and query",
		func(res route.Resolution, path, rawQuery, want string) {
			Expect(res.TargetURL(path, model.ParseQuery(rawQuery))).To(Equal(want))
		},
		Entry("strips the matched prefix",
			route.Resolution{Target: "https://new.example.com", StripPrefix: 4}, "/old/page", "x=1",
			"https://new.example.com/page?x=1"),
		Entry("exact match becomes root",
			route.Resolution{Target: "https://new.example.com", StripPrefix: 4}, "/old", "",
			"https://new.example.com/"),
		Entry("partial segment remainder appended without a slash",
			route.Resolution{Target: "https://api.example.com", StripPrefix: 4}, "/apix", "",
			"https://api.example.comx"),
		Entry("default route keeps the full path",
			route.Resolution{Target: "https://www.example.com"}, "/a/b", "q=hello world",
			"https://www.example.com/a/b?q=hello+world"),
		Entry("no question mark without a query",
			route.Resolution{Target: "https://www.example.com"}, "/", "",
			"https://www.example.com/"),
	)
})

var _ = Describe("NormalizePath", func() {
	DescribeTable("trailing slash handling",
		func(in, want string) {
			Expect(route.NormalizePath(in)).To(Equal(want))
		},
		Entry("root stays root", "/", "/"),
		Entry("empty becomes root", "", "/"),
		Entry("trailing slash dropped", "/foo/", "/foo"),
		Entry("only one slash dropped", "/foo//", "/foo/"),
		Entry("no trailing slash unchanged", "/foo/bar", "/foo/bar"),
	)
})
