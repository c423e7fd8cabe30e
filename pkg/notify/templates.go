package notify

const providerWeeklySubject = `Your weekly summary for {{ week_start }} to {{ week_end }}`

const providerWeeklyHTML = `<h2>Hi {{ provider_name }},</h2>
<p>Here is how your profile did between {{ week_start }} and {{ week_end }}.</p>
<table>
  <tr><th></th><th>This week</th><th>Previous week</th><th>Change</th></tr>
  <tr><td>Leads</td><td>{{ current.leads }}</td><td>{{ previous.leads }}</td><td>{{ leads_growth | signed }}%</td></tr>
  <tr><td>Page views</td><td>{{ current.page_views }}</td><td>{{ previous.page_views }}</td><td>{{ page_views_growth | signed }}%</td></tr>
  <tr><td>Conversions</td><td>{{ current.conversions }}</td><td>{{ previous.conversions }}</td><td>{{ conversions_growth | signed }}%</td></tr>
</table>
<p>Conversion rate: {{ current.conversion_rate }}%</p>`

const providerWeeklyText = `Hi {{ provider_name }},

Your summary for {{ week_start }} to {{ week_end }}:
Leads: {{ current.leads }} ({{ leads_growth | signed }}%)
Page views: {{ current.page_views }} ({{ page_views_growth | signed }}%)
Conversions: {{ current.conversions }} ({{ conversions_growth | signed }}%)
Conversion rate: {{ current.conversion_rate }}%
`

const adminWeeklySubject = `Platform summary for {{ week_start }} to {{ week_end }}`

const adminWeeklyHTML = `<h2>Platform summary</h2>
<p>{{ week_start }} to {{ week_end }}, {{ providers }} active providers.</p>
<table>
  <tr><th></th><th>This week</th><th>Previous week</th></tr>
  <tr><td>Leads</td><td>{{ current.leads }}</td><td>{{ previous.leads }}</td></tr>
  <tr><td>Page views</td><td>{{ current.page_views }}</td><td>{{ previous.page_views }}</td></tr>
  <tr><td>Conversions</td><td>{{ current.conversions }}</td><td>{{ previous.conversions }}</td></tr>
</table>
<p>Leads growth: {{ leads_growth | signed }}%. Conversions growth: {{ conversions_growth | signed }}%.</p>
<h3>Top providers by leads</h3>
<ol>
{% for p in top %}  <li>{{ p.name }}: {{ p.leads }} leads</li>
{% endfor %}</ol>`

const adminWeeklyText = `Platform summary for {{ week_start }} to {{ week_end }}
Active providers: {{ providers }}
Leads: {{ current.leads }} ({{ leads_growth | signed }}%)
Page views: {{ current.page_views }}
Conversions: {{ current.conversions }} ({{ conversions_growth | signed }}%)

Top providers by leads:
{% for p in top %}{{ forloop.index }}. {{ p.name }}: {{ p.leads }}
{% endfor %}`
